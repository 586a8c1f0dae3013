package engine

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", eris.Wrap(store.ErrNotFound, "memory: asset"), KindNotFound},
		{"province", eris.Wrapf(aal.ErrUnknownProvince, "aal: province %q", "x"), KindNotFound},
		{"class", eris.Wrap(asset.ErrInvalidClass, "asset: id"), KindInvalidInput},
		{"other", errors.New("connection reset"), KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Contains(t, err.Error(), "engine: op")
		})
	}
}

func TestClassify_KeepsExistingKind(t *testing.T) {
	inner := classify("refresh", errors.New("boom"))
	assert.Same(t, inner, classify("recompute", inner))
	assert.Nil(t, classify("op", nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "not_found", KindNotFound.String())
}
