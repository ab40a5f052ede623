// Package policy classifies DICOM fields into de-identification actions.
package policy

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Action is what the anonymizer does with one field.
type Action int

const (
	// Keep leaves the field untouched. Tags absent from the policy are kept.
	Keep Action = iota
	// Remove blanks the field value.
	Remove
	// ReplaceWithShiftedID shifts a numeric value with the identifier key.
	ReplaceWithShiftedID
	// ReplaceDate shifts a date value with the date key.
	ReplaceDate
)

func (a Action) String() string {
	switch a {
	case Remove:
		return "Remove"
	case ReplaceWithShiftedID:
		return "Replace"
	case ReplaceDate:
		return "ReplaceDate"
	default:
		return "Keep"
	}
}

// ParseAction maps a category string from a policy table to an Action.
// Unknown or empty categories mean Keep.
func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remove":
		return Remove
	case "replace":
		return ReplaceWithShiftedID
	case "replacedate":
		return ReplaceDate
	default:
		return Keep
	}
}

// Rule binds one tag to an action.
type Rule struct {
	Tag    tag.Tag
	Action Action
}

// Policy is an immutable classification table. It is safe for concurrent use.
type Policy struct {
	actions     map[tag.Tag]Action
	remove      []tag.Tag
	replace     []tag.Tag
	replaceDate []tag.Tag
}

// New builds a Policy from rules. Keep rules are dropped, repeated rules keep
// their first position, and a tag bound to two different actions is an error.
func New(rules []Rule) (*Policy, error) {
	p := &Policy{actions: make(map[tag.Tag]Action)}

	for _, r := range rules {
		if r.Action == Keep {
			continue
		}
		if prev, ok := p.actions[r.Tag]; ok {
			if prev != r.Action {
				return nil, fmt.Errorf("tag %s listed as both %s and %s", r.Tag, prev, r.Action)
			}
			continue
		}
		p.actions[r.Tag] = r.Action

		switch r.Action {
		case Remove:
			p.remove = append(p.remove, r.Tag)
		case ReplaceWithShiftedID:
			p.replace = append(p.replace, r.Tag)
		case ReplaceDate:
			p.replaceDate = append(p.replaceDate, r.Tag)
		default:
			return nil, fmt.Errorf("tag %s: unknown action %d", r.Tag, int(r.Action))
		}
	}

	return p, nil
}

// ActionFor returns the action for t, Keep when t is not in the table.
func (p *Policy) ActionFor(t tag.Tag) Action {
	return p.actions[t]
}

// ToRemove returns the tags to blank, in table order.
func (p *Policy) ToRemove() []tag.Tag { return lo.Uniq(p.remove) }

// ToReplace returns the tags to shift with the identifier key, in table order.
func (p *Policy) ToReplace() []tag.Tag { return lo.Uniq(p.replace) }

// ToReplaceDate returns the tags to shift with the date key, in table order.
func (p *Policy) ToReplaceDate() []tag.Tag { return lo.Uniq(p.replaceDate) }

// Len returns the number of non-Keep tags.
func (p *Policy) Len() int {
	return len(p.actions)
}
