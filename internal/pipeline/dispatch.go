package pipeline

import (
	"errors"

	"cloudpico-bridge/internal/record"
)

// CoreKind decides how the composer wraps a formatter's output.
type CoreKind uint8

const (
	CoreNone CoreKind = iota
	CoreTopic
	CoreNumber
	CoreString
	CoreArray
	CoreObject
)

// Support flags what a record type may do besides rendering a value.
type Support uint8

const (
	// SupportCache means the extra byte carries a cache command.
	SupportCache Support = 1 << iota
	// SupportDoubleField means record.DoubleField in type-info is honoured.
	SupportDoubleField
)

// FormatFunc renders the value of r. It must be a pure function of its
// arguments so that calling it to measure and again to write yields the
// same bytes.
type FormatFunc func(w *Writer, r *record.Record, c *Cache) error

// TypeInfo is one row of the dispatch table.
type TypeInfo struct {
	Format  FormatFunc
	Core    CoreKind
	Support Support
}

var (
	ErrNoDevice         = errors.New("no device in cache")
	ErrNoEntity         = errors.New("no discovery entity in cache")
	ErrUnknownTopic     = errors.New("unknown topic kind or subject")
	ErrUnknownComponent = errors.New("unknown discovery component")
	ErrInvalidValue     = errors.New("value cannot be rendered")
	ErrNotRenderable    = errors.New("record type is not renderable")
)

var dispatch = [record.TypeCount]TypeInfo{
	record.TypeNone:      {Format: formatNone, Core: CoreNone, Support: SupportCache},
	record.TypeGenerator: {Format: formatGenerator, Core: CoreNone},
	record.TypeTopic:     {Format: formatTopic, Core: CoreTopic, Support: SupportCache},
	record.TypeDevice:    {Format: formatDevice, Core: CoreObject},
	record.TypeString:    {Format: formatString, Core: CoreString},
	record.TypeRaw:       {Format: formatRaw, Core: CoreString},
	record.TypeInt32:     {Format: formatInt32, Core: CoreNumber, Support: SupportDoubleField},
	record.TypeHex32:     {Format: formatHex32, Core: CoreString},
	record.TypeInt64:     {Format: formatInt64, Core: CoreNumber},
	record.TypeFloat:     {Format: formatFloat, Core: CoreNumber, Support: SupportDoubleField},
	record.TypeDouble:    {Format: formatDouble, Core: CoreNumber},
}

// Lookup returns the dispatch row of t. Unknown tags render nothing.
func Lookup(t record.Type) TypeInfo {
	if t < record.TypeCount {
		return dispatch[t]
	}
	return TypeInfo{Format: formatGenerator, Core: CoreNone}
}

func (k CoreKind) quoted() bool { return k == CoreString || k == CoreTopic }

func (k CoreKind) complex() bool { return k == CoreArray || k == CoreObject }

func (k CoreKind) open() byte {
	if k == CoreArray {
		return '['
	}
	return '{'
}

func (k CoreKind) close() byte {
	if k == CoreArray {
		return ']'
	}
	return '}'
}
