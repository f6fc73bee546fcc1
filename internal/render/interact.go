package render

import (
	"errors"
	"sort"

	"github.com/stemsi/ielts-listening/internal/parser"
)

var (
	ErrUnknownOption = errors.New("option does not belong to this question")
	ErrNotInGroup    = errors.New("number is not part of this group")
	ErrUnresolved    = errors.New("display number has no question")
	ErrNotPlaced     = errors.New("option is not in the source slot")
)

// Slots reads and writes answers by question id. store.Writer satisfies it,
// so each interaction below commits as one store update.
type Slots interface {
	Get(questionID string) string
	Set(questionID, value string)
}

func hasOption(opts []parser.Option, value string) bool {
	for _, o := range opts {
		if o.Value == value {
			return true
		}
	}
	return false
}

// SelectOption answers a multiple-choice or table-radio question. The
// previous selection is replaced.
func SelectOption(d *parser.Descriptor, nums Numbers, w Slots, number int, value string) error {
	opts := d.Options
	if d.Kind == parser.KindTableRadio {
		opts = nil
		for _, row := range d.Rows {
			if row.Number == number {
				opts = row.Options
			}
		}
		if opts == nil {
			return ErrNotInGroup
		}
	} else if d.Number != number {
		return ErrNotInGroup
	}
	if !hasOption(opts, value) {
		return ErrUnknownOption
	}

	id, ok := nums.ID(number)
	if !ok {
		return ErrUnresolved
	}
	w.Set(id, value)
	return nil
}

// ToggleCheckbox flips one option of a checkbox group. Checking past the
// group's select count is ignored and reported as unchanged. After a valid
// toggle the selection is sorted and written positionally: the i-th value
// goes to the i-th number of the range, remaining numbers get "".
func ToggleCheckbox(d *parser.Descriptor, nums Numbers, w Slots, value string) (bool, error) {
	if !hasOption(d.Options, value) {
		return false, ErrUnknownOption
	}

	var ids []string
	for n := d.Start; n <= d.End; n++ {
		if id, ok := nums.ID(n); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false, ErrUnresolved
	}
	limit := d.SelectCount
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	selected := make(map[string]bool)
	for _, id := range ids {
		if v := w.Get(id); v != "" && hasOption(d.Options, v) {
			selected[v] = true
		}
	}

	if selected[value] {
		delete(selected, value)
	} else {
		if len(selected) >= limit {
			return false, nil
		}
		selected[value] = true
	}

	values := make([]string, 0, len(selected))
	for v := range selected {
		values = append(values, v)
	}
	sort.Strings(values)

	for i, id := range ids {
		if i < len(values) {
			w.Set(id, values[i])
		} else {
			w.Set(id, "")
		}
	}
	return true, nil
}

// Drop moves a drag-drop option. from and to are display numbers, 0 meaning
// the option pool. Dropping on a filled slot swaps with the source slot, or
// overwrites it when the option came from the pool. Dropping on the pool
// clears the source slot. An option never ends up in two slots.
func Drop(d *parser.Descriptor, nums Numbers, w Slots, value string, from, to int) error {
	if !hasOption(d.Options, value) {
		return ErrUnknownOption
	}
	if from == to {
		return nil
	}

	slot := func(number int) (string, error) {
		if !hasZone(d, number) {
			return "", ErrNotInGroup
		}
		id, ok := nums.ID(number)
		if !ok {
			return "", ErrUnresolved
		}
		return id, nil
	}

	var fromID string
	if from != 0 {
		id, err := slot(from)
		if err != nil {
			return err
		}
		if w.Get(id) != value {
			return ErrNotPlaced
		}
		fromID = id
	}

	if to == 0 {
		if fromID != "" {
			w.Set(fromID, "")
		}
		return nil
	}

	toID, err := slot(to)
	if err != nil {
		return err
	}
	displaced := w.Get(toID)

	if fromID != "" {
		w.Set(toID, value)
		w.Set(fromID, displaced)
		return nil
	}

	// From the pool: the option may still sit in another slot if the
	// client's view was stale, so clear it there first.
	for _, z := range d.Zones {
		if z.Number == to {
			continue
		}
		if id, ok := nums.ID(z.Number); ok && w.Get(id) == value {
			w.Set(id, "")
		}
	}
	w.Set(toID, value)
	return nil
}

func hasZone(d *parser.Descriptor, number int) bool {
	for _, z := range d.Zones {
		if z.Number == number {
			return true
		}
	}
	return false
}

// Placed returns the option values currently sitting in the descriptor's slots.
func Placed(d *parser.Descriptor, nums Numbers, answers Answers) map[string]bool {
	placed := make(map[string]bool)
	for _, z := range d.Zones {
		id, ok := nums.ID(z.Number)
		if !ok {
			continue
		}
		if v := answers.Answer(id); v != "" {
			placed[v] = true
		}
	}
	return placed
}

// Pool returns the options not placed in any slot, in original order.
func Pool(d parser.Descriptor, placed map[string]bool) []parser.Option {
	out := make([]parser.Option, 0, len(d.Options))
	for _, o := range d.Options {
		if !placed[o.Value] {
			out = append(out, o)
		}
	}
	return out
}
