package fl_test

import (
	"testing"

	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORCodec(t *testing.T) {
	params := fl.Params{{1.5, -2, 0}, {42}}

	for _, compress := range []bool{false, true} {
		codec := fl.NewCBORCodec(compress)

		data, err := codec.Encode(params)
		require.NoError(t, err)

		got, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, params, got)
	}
}

func TestCBORCodecDecodeErrors(t *testing.T) {
	cases := []struct {
		desc     string
		compress bool
		data     []byte
	}{
		{desc: "empty payload", data: nil},
		{desc: "garbage", data: []byte{0xff, 0x00, 0x13}},
		{desc: "invalid snappy frame", compress: true, data: []byte{0xff, 0xff, 0xff}},
		{desc: "empty params", data: []byte{0x80}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := fl.NewCBORCodec(tc.compress).Decode(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestSameShape(t *testing.T) {
	assert.True(t, fl.SameShape(fl.Params{{1, 2}, {3}}, fl.Params{{0, 0}, {0}}))
	assert.False(t, fl.SameShape(fl.Params{{1, 2}}, fl.Params{{0, 0}, {0}}))
	assert.False(t, fl.SameShape(fl.Params{{1, 2}}, fl.Params{{0}}))
}

func TestServerConfig(t *testing.T) {
	cfg := fl.ServerConfig{MaxWorkers: 10}.WithDefaults()
	assert.Equal(t, uint64(1), cfg.MinWorkers)
	assert.Equal(t, fl.PoolRandom, cfg.PoolSelection)
	assert.Equal(t, fl.DefaultConfidence, cfg.Confidence)
	assert.NoError(t, cfg.Validate())

	cases := []struct {
		desc string
		cfg  fl.ServerConfig
	}{
		{desc: "zero max workers", cfg: fl.ServerConfig{}.WithDefaults()},
		{desc: "min above max", cfg: fl.ServerConfig{MaxWorkers: 2, MinWorkers: 3}.WithDefaults()},
		{desc: "unknown pool selection", cfg: fl.ServerConfig{MaxWorkers: 2, PoolSelection: "lottery"}.WithDefaults()},
		{desc: "confidence out of range", cfg: fl.ServerConfig{MaxWorkers: 2, Confidence: 1.5}.WithDefaults()},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, tc.cfg.Validate(), fl.ErrInvalidConfig)
		})
	}
}
