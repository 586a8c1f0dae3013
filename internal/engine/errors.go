package engine

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/store"
)

// Kind classifies engine failures for callers.
type Kind int

const (
	// KindUnknown is any failure not classified below.
	KindUnknown Kind = iota
	// KindNotFound: the asset, its direct-loss record or its province row
	// does not exist.
	KindNotFound
	// KindInvalidInput: the request cannot be processed as given, e.g. an
	// asset id with an unknown class prefix.
	KindInvalidInput
	// KindUpstream: the store or another collaborator failed.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return "engine: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// classify wraps err with the kind its cause implies.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindUpstream
	switch {
	case eris.Is(err, store.ErrNotFound), eris.Is(err, aal.ErrUnknownProvince):
		kind = KindNotFound
	case eris.Is(err, asset.ErrInvalidClass):
		kind = KindInvalidInput
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
