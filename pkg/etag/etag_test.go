package etag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		absent  bool
		wantErr bool
	}{
		{name: "quoted", raw: `"3"`, want: 3},
		{name: "bare", raw: "3", want: 3},
		{name: "whitespace", raw: `  "7"  `, want: 7},
		{name: "empty is absent", raw: "", absent: true},
		{name: "whitespace only is absent", raw: "   ", absent: true},
		{name: "zero", raw: `"0"`, wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "non-numeric", raw: `"abc"`, wantErr: true},
		{name: "lone quote", raw: `"`, wantErr: true},
		{name: "empty quotes", raw: `""`, wantErr: true},
		{name: "wildcard not supported", raw: "*", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseIfMatch(test.raw)
			if test.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidIfMatch)
				return
			}
			require.NoError(t, err)
			if test.absent {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, test.want, *got)
		})
	}
}

func TestParseIfMatchAcceptsStoredItemETags(t *testing.T) {
	for _, v := range []int64{1, 2, 17, 1 << 40} {
		got, err := ParseIfMatch(types.FormatETag(v))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, v, *got)
	}
}
