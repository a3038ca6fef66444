package bgm

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sort"

	"github.com/clipforge/clipforge/internal/models"
)

// Track is one entry in the tagged background music library.
type Track struct {
	ID    string   `json:"id"`
	Path  string   `json:"path"`
	Moods []string `json:"moods"`
}

// Library holds the BGM tracks loaded from the manifest. Selection is a
// pure function of (plan id, mood, library contents) so graph construction
// stays reproducible: the apparent randomness of track choice is a seeded
// hash of the plan id, never a true random draw.
type Library struct {
	tracks []Track
	byID   map[string]Track
}

// LoadLibrary reads the JSON track manifest. A missing manifest yields an
// empty library (plans then render without BGM) rather than an error, so a
// bare deployment still works.
func LoadLibrary(manifestPath string) (*Library, error) {
	lib := &Library{byID: make(map[string]Track)}

	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bgm manifest: %w", err)
	}

	var manifest struct {
		Tracks []Track `json:"tracks"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing bgm manifest %s: %w", manifestPath, err)
	}

	for _, t := range manifest.Tracks {
		if t.ID == "" || t.Path == "" {
			return nil, fmt.Errorf("bgm manifest %s: track with empty id or path", manifestPath)
		}
		if _, dup := lib.byID[t.ID]; dup {
			return nil, fmt.Errorf("bgm manifest %s: duplicate track id %q", manifestPath, t.ID)
		}
		lib.byID[t.ID] = t
		lib.tracks = append(lib.tracks, t)
	}

	sort.Slice(lib.tracks, func(i, j int) bool { return lib.tracks[i].ID < lib.tracks[j].ID })

	return lib, nil
}

// NewLibrary builds a library from in-memory tracks (used by tests).
func NewLibrary(tracks []Track) *Library {
	lib := &Library{byID: make(map[string]Track)}
	for _, t := range tracks {
		lib.byID[t.ID] = t
		lib.tracks = append(lib.tracks, t)
	}
	sort.Slice(lib.tracks, func(i, j int) bool { return lib.tracks[i].ID < lib.tracks[j].ID })
	return lib
}

// HasTrack reports whether an explicit track id exists.
func (l *Library) HasTrack(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Select returns the BGM track for a validated plan, or nil when the
// library has nothing suitable (the edit then carries no BGM). Explicit
// mode is an exact lookup; auto mode hashes the plan id over the
// mood-filtered, id-sorted track list so repeated runs of the same plan
// always pick the same track.
func (l *Library) Select(plan *models.EditingPlan) *Track {
	if plan.BGM.Mode == models.BGMModeExplicit {
		if t, ok := l.byID[plan.BGM.TrackID]; ok {
			return &t
		}
		return nil // unreachable after validation
	}

	candidates := l.tracksForMood(string(plan.Mood))
	if len(candidates) == 0 {
		return nil
	}

	h := fnv.New32a()
	h.Write([]byte(plan.PlanID))
	t := candidates[int(h.Sum32())%len(candidates)]
	return &t
}

// tracksForMood returns the id-sorted tracks tagged with the mood.
func (l *Library) tracksForMood(mood string) []Track {
	var out []Track
	for _, t := range l.tracks {
		for _, m := range t.Moods {
			if m == mood {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
