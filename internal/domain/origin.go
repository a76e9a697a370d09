package domain

import "fmt"

// OriginKind distinguishes records owned by this engine from everything else.
type OriginKind uint8

const (
	// OriginForeign is any mechanism other than this engine: manual grants,
	// self enrolment, other plugins.
	OriginForeign OriginKind = iota
	// OriginLink marks a record created by this engine for one LinkInstance.
	OriginLink
)

// Origin tags a membership, role assignment or event with the mechanism
// that produced it.
type Origin struct {
	Kind      OriginKind
	Component string
	LinkID    LinkID
}

// LinkOrigin returns the origin of records owned by link id.
func LinkOrigin(id LinkID) Origin {
	return Origin{Kind: OriginLink, Component: LinkComponent, LinkID: id}
}

// ForeignOrigin returns the origin of a record produced by component.
// An empty component stands for a manual action.
func ForeignOrigin(component string) Origin {
	return Origin{Kind: OriginForeign, Component: component}
}

// IsLink reports whether the origin is this engine.
func (o Origin) IsLink() bool {
	return o.Kind == OriginLink
}

// Validate rejects origins that would let a foreign writer impersonate the engine.
func (o Origin) Validate() error {
	switch o.Kind {
	case OriginLink:
		if o.LinkID <= 0 {
			return fmt.Errorf("link origin without link id")
		}
		if o.Component != LinkComponent {
			return fmt.Errorf("link origin with component %q", o.Component)
		}
	case OriginForeign:
		if o.Component == LinkComponent {
			return fmt.Errorf("component %q is reserved", LinkComponent)
		}
		if o.LinkID != 0 {
			return fmt.Errorf("foreign origin with link id %d", o.LinkID)
		}
	default:
		return fmt.Errorf("unknown origin kind %d", o.Kind)
	}
	return nil
}

// OriginFromRow rebuilds an Origin from its stored columns.
func OriginFromRow(component string, linkID int64) Origin {
	if component == LinkComponent {
		return LinkOrigin(LinkID(linkID))
	}
	return ForeignOrigin(component)
}

func (o Origin) String() string {
	if o.IsLink() {
		return fmt.Sprintf("%s:%d", LinkComponent, o.LinkID)
	}
	if o.Component == "" {
		return "manual"
	}
	return o.Component
}
