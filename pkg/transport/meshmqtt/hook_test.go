package meshmqtt

import (
	"testing"

	mqtt "github.com/mochi-mqtt/server/v2"

	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

func TestMeshHookInit(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})

	tests := []struct {
		name    string
		config  any
		wantErr bool
	}{
		{"valid options", &meshHookOptions{Core: c}, false},
		{"nil config", nil, true},
		{"wrong type", "not options", true},
		{"typed nil options", (*meshHookOptions)(nil), true},
		{"options without core", &meshHookOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := new(meshHook)
			err := h.Init(tt.config)
			if tt.wantErr {
				if err != mqtt.ErrInvalidConfigType {
					t.Errorf("Init() error = %v, want ErrInvalidConfigType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Init() failed: %v", err)
			}
			if h.config == nil || h.config.Core != c {
				t.Error("Init() should retain the options")
			}
		})
	}
}
