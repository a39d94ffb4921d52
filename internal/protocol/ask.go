package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AskKind tags one variant of the Ask union.
type AskKind string

const (
	AskPageThumbnailKind         AskKind = "PAGE_THUMBNAIL"
	AskSheetThumbnailKind        AskKind = "SHEET_THUMBNAIL"
	AskSectionalThumbnailKind    AskKind = "SECTIONAL_THUMBNAIL"
	AskVariantMeasuresKind       AskKind = "VARIANT_MEASURES"
	AskPartOverallDimensionsKind AskKind = "PART_OVERALL_DIMENSIONS"
)

// AllAskKinds lists every known ask kind in declaration order.
func AllAskKinds() []AskKind {
	return []AskKind{
		AskPageThumbnailKind,
		AskSheetThumbnailKind,
		AskSectionalThumbnailKind,
		AskVariantMeasuresKind,
		AskPartOverallDimensionsKind,
	}
}

func ParseAskKind(raw string) (AskKind, bool) {
	kind := AskKind(strings.TrimSpace(raw))
	switch kind {
	case AskPageThumbnailKind,
		AskSheetThumbnailKind,
		AskSectionalThumbnailKind,
		AskVariantMeasuresKind,
		AskPartOverallDimensionsKind:
		return kind, true
	default:
		return "", false
	}
}

// Ask is a typed request for one fact about the drawing. The set of
// implementations is closed to this package.
type Ask interface {
	Kind() AskKind
	isAsk()
}

// ThumbnailLimits bounds the rendered size of a thumbnail ask. Zero means
// server default.
type ThumbnailLimits struct {
	MaxWidth  int `json:"max_width,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`
}

type AskPageThumbnail struct {
	ThumbnailLimits
}

type AskSheetThumbnail struct {
	ThumbnailLimits
}

type AskSectionalThumbnail struct {
	ThumbnailLimits
}

type AskVariantMeasures struct{}

type AskPartOverallDimensions struct{}

func (AskPageThumbnail) Kind() AskKind         { return AskPageThumbnailKind }
func (AskSheetThumbnail) Kind() AskKind        { return AskSheetThumbnailKind }
func (AskSectionalThumbnail) Kind() AskKind    { return AskSectionalThumbnailKind }
func (AskVariantMeasures) Kind() AskKind       { return AskVariantMeasuresKind }
func (AskPartOverallDimensions) Kind() AskKind { return AskPartOverallDimensionsKind }

func (AskPageThumbnail) isAsk()         {}
func (AskSheetThumbnail) isAsk()        {}
func (AskSectionalThumbnail) isAsk()    {}
func (AskVariantMeasures) isAsk()       {}
func (AskPartOverallDimensions) isAsk() {}

// NewAsk returns the zero-parameter variant for kind.
func NewAsk(kind AskKind) (Ask, error) {
	switch kind {
	case AskPageThumbnailKind:
		return AskPageThumbnail{}, nil
	case AskSheetThumbnailKind:
		return AskSheetThumbnail{}, nil
	case AskSectionalThumbnailKind:
		return AskSectionalThumbnail{}, nil
	case AskVariantMeasuresKind:
		return AskVariantMeasures{}, nil
	case AskPartOverallDimensionsKind:
		return AskPartOverallDimensions{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown ask kind %q", ErrInvalidMessage, kind)
	}
}

// MarshalAsk encodes an ask as a flat object tagged by "ask_type".
func MarshalAsk(ask Ask) ([]byte, error) {
	if ask == nil {
		return nil, fmt.Errorf("%w: nil ask", ErrInvalidMessage)
	}
	body, err := json.Marshal(ask)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(ask.Kind())
	if err != nil {
		return nil, err
	}
	fields["ask_type"] = kind
	return json.Marshal(fields)
}

// UnmarshalAsk decodes a tagged ask object into its concrete variant.
func UnmarshalAsk(data []byte) (Ask, error) {
	var tag struct {
		AskType string `json:"ask_type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("%w: ask: %v", ErrInvalidMessage, err)
	}
	kind, ok := ParseAskKind(tag.AskType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown ask kind %q", ErrInvalidMessage, tag.AskType)
	}
	switch kind {
	case AskPageThumbnailKind:
		var a AskPageThumbnail
		if err := unmarshalAskBody(data, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AskSheetThumbnailKind:
		var a AskSheetThumbnail
		if err := unmarshalAskBody(data, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AskSectionalThumbnailKind:
		var a AskSectionalThumbnail
		if err := unmarshalAskBody(data, &a); err != nil {
			return nil, err
		}
		return a, nil
	case AskVariantMeasuresKind:
		return AskVariantMeasures{}, nil
	case AskPartOverallDimensionsKind:
		return AskPartOverallDimensions{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown ask kind %q", ErrInvalidMessage, kind)
	}
}

func unmarshalAskBody(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: ask body: %v", ErrInvalidMessage, err)
	}
	return nil
}
