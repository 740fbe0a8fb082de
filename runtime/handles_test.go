package runtime_test

import (
	"testing"

	"github.com/dashrun/dash/runtime"
	"github.com/dashrun/dash/stream"
)

func TestChannelKeyStableAndDistinct(t *testing.T) {
	k1 := runtime.ChannelKey(3, stream.Stdout, runtime.ChannelWriter)
	k2 := runtime.ChannelKey(3, stream.Stdout, runtime.ChannelWriter)
	if k1 != k2 {
		t.Error("ChannelKey should be deterministic for identical inputs")
	}

	variants := []uint64{
		runtime.ChannelKey(3, stream.Stdout, runtime.ChannelReader),
		runtime.ChannelKey(4, stream.Stdout, runtime.ChannelWriter),
		runtime.ChannelKey(3, stream.Stderr, runtime.ChannelWriter),
	}
	for _, v := range variants {
		if v == k1 {
			t.Errorf("ChannelKey collision: %d should differ from the base key %d", v, k1)
		}
	}
}
