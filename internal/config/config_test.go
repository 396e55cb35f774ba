package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags_Defaults(t *testing.T) {
	var o Options
	fs := pflag.NewFlagSet("netbw", pflag.ContinueOnError)
	o.BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	assert.Empty(t, o.Interface)
	assert.False(t, o.Raw)
	assert.True(t, o.Resolve())
	assert.False(t, o.ShowDNS)
	assert.Equal(t, RenderOptions{}, o.Render)
	assert.NoError(t, o.Validate())
}

func TestBindFlags_Shorthands(t *testing.T) {
	var o Options
	fs := pflag.NewFlagSet("netbw", pflag.ContinueOnError)
	o.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-i", "eth0", "-r", "-n", "-s", "-p", "-t"}))

	assert.Equal(t, "eth0", o.Interface)
	assert.True(t, o.Raw)
	assert.False(t, o.Resolve())
	assert.True(t, o.ShowDNS)
	assert.True(t, o.Render.Processes)
	assert.False(t, o.Render.Connections)
	assert.True(t, o.Render.TotalUtilization)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "empty", opts: Options{}},
		{name: "interface", opts: Options{Interface: "wlan0"}},
		{name: "bad interface", opts: Options{Interface: "eth0/1"}, wantErr: true},
		{name: "debug without file", opts: Options{Debug: true}, wantErr: true},
		{name: "debug with file", opts: Options{Debug: true, LogFile: "/tmp/netbw.log"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
