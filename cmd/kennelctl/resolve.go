package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/model"
)

var (
	errNoMatch   = errors.New("no matching visit")
	errAmbiguous = errors.New("ambiguous reference")
)

// minPrefix is the shortest id prefix accepted as a reference.
const minPrefix = 4

func matches(ref string, id uuid.UUID, name string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	if len(lower) >= minPrefix && strings.HasPrefix(id.String(), lower) {
		return true
	}
	return model.NormalizeName(name) == model.NormalizeName(ref)
}

// resolveVisit finds the one visit ref names: a visit id, an id prefix or a dog name.
// When a name matches several visits, the single active one wins.
func resolveVisit(entries []model.DogWithVisit, ref string, now time.Time) (model.DogWithVisit, error) {
	if id, err := uuid.FromString(strings.TrimSpace(ref)); err == nil {
		for _, d := range entries {
			if d.ID() == id {
				return d, nil
			}
		}
		return model.DogWithVisit{}, fmt.Errorf("%s: %w", id, errNoMatch)
	}

	var hits, active []model.DogWithVisit
	for _, d := range entries {
		if !matches(ref, d.ID(), d.Dog.Name) {
			continue
		}
		hits = append(hits, d)
		if d.IsCurrentlyPresent(now) {
			active = append(active, d)
		}
	}
	switch {
	case len(hits) == 1:
		return hits[0], nil
	case len(active) == 1:
		return active[0], nil
	case len(hits) == 0:
		return model.DogWithVisit{}, fmt.Errorf("%q: %w", ref, errNoMatch)
	}
	ids := make([]string, 0, len(hits))
	for _, d := range hits {
		ids = append(ids, shortID(d.ID()))
	}
	return model.DogWithVisit{}, fmt.Errorf("%q matches visits %s: %w", ref, strings.Join(ids, ", "), errAmbiguous)
}

// resolveDog finds the one profile ref names: a dog id, an id prefix or a name.
func resolveDog(entries []model.DogWithVisit, ref string) (model.PersistentDog, error) {
	seen := make(map[uuid.UUID]model.PersistentDog)
	var order []uuid.UUID
	for _, d := range entries {
		if _, ok := seen[d.DogID()]; ok {
			continue
		}
		if matches(ref, d.DogID(), d.Dog.Name) {
			seen[d.DogID()] = d.Dog
			order = append(order, d.DogID())
		}
	}
	switch len(order) {
	case 0:
		return model.PersistentDog{}, fmt.Errorf("%q: %w", ref, errNoMatch)
	case 1:
		return seen[order[0]], nil
	}
	ids := make([]string, 0, len(order))
	for _, id := range order {
		ids = append(ids, shortID(id)+" ("+seen[id].OwnerName+")")
	}
	return model.PersistentDog{}, fmt.Errorf("%q matches dogs %s: %w", ref, strings.Join(ids, ", "), errAmbiguous)
}

// findMedication returns the catalog id of a medication named name, or uuid.Nil.
func findMedication(dog model.PersistentDog, name string) uuid.UUID {
	for _, m := range dog.Medications {
		if model.NormalizeName(m.Name) == model.NormalizeName(name) {
			return m.ID
		}
	}
	return uuid.Nil
}

var whenLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// parseWhen reads an absolute time in local time or a duration from now such as "2h" or "-30m".
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "now" {
		return now, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (use RFC 3339, \"2006-01-02 15:04\" or a duration like 2h)", s)
}
