package tools

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/richinex/llmbridge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// genai, reached through llm, starts an opencensus worker in init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestParseShellArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        string
		wantCommand []string
		wantWorkdir string
		wantTimeout time.Duration
		wantErr     bool
	}{
		{
			name:        "command only",
			args:        `{"command":["ls","-la"]}`,
			wantCommand: []string{"ls", "-la"},
		},
		{
			name:        "workdir and timeout",
			args:        `{"command":["pwd"],"workdir":"/tmp","timeout":2500}`,
			wantCommand: []string{"pwd"},
			wantWorkdir: "/tmp",
			wantTimeout: 2500 * time.Millisecond,
		},
		{
			name:        "huge timeout is clamped",
			args:        `{"command":["pwd"],"timeout":1e300}`,
			wantCommand: []string{"pwd"},
			wantTimeout: MaxShellTimeout,
		},
		{
			name:        "timeout just under the cap",
			args:        `{"command":["pwd"],"timeout":3599999}`,
			wantCommand: []string{"pwd"},
			wantTimeout: 3599999 * time.Millisecond,
		},
		{name: "empty command", args: `{"command":[]}`, wantErr: true},
		{name: "blank program", args: `{"command":["  "]}`, wantErr: true},
		{name: "missing command", args: `{}`, wantErr: true},
		{name: "command as string", args: `{"command":"ls"}`, wantErr: true},
		{name: "negative timeout", args: `{"command":["ls"],"timeout":-1}`, wantErr: true},
		{name: "not json", args: `ls -la`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, workdir, timeout, err := ParseShellArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommand, command)
			assert.Equal(t, tt.wantWorkdir, workdir)
			assert.Equal(t, tt.wantTimeout, timeout)
		})
	}
}

func TestShellTool_Execute(t *testing.T) {
	out, err := NewShellTool().Execute(context.Background(), `{"command":["echo","hello"]}`)
	require.NoError(t, err)

	doc := gjson.Parse(out)
	assert.Equal(t, "hello\n", doc.Get("output").String())
	assert.Equal(t, int64(0), doc.Get("metadata.exit_code").Int())
	assert.True(t, doc.Get("metadata.duration_seconds").Exists())
}

func TestShellTool_Workdir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/marker.txt", []byte("x"), 0o644))

	out, err := NewShellTool().Execute(context.Background(), `{"command":["ls"],"workdir":"`+dir+`"}`)
	require.NoError(t, err)
	assert.Contains(t, gjson.Get(out, "output").String(), "marker.txt")
}

func TestShellTool_NonZeroExitIsReported(t *testing.T) {
	out, err := NewShellTool().Execute(context.Background(), `{"command":["ls","/llmbridge-no-such-dir"]}`)
	require.NoError(t, err)

	assert.NotZero(t, gjson.Get(out, "metadata.exit_code").Int())
	assert.Contains(t, gjson.Get(out, "output").String(), "llmbridge-no-such-dir")
}

func TestShellTool_Timeout(t *testing.T) {
	start := time.Now()
	out, err := NewShellTool().Execute(context.Background(), `{"command":["sleep","5"],"timeout":100}`)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, int64(exitCodeTimeout), gjson.Get(out, "metadata.exit_code").Int())
	assert.Contains(t, gjson.Get(out, "output").String(), "timed out")
}

func TestShellTool_DefaultTimeout(t *testing.T) {
	tool := NewShellTool().WithDefaultTimeout(100 * time.Millisecond)

	out, err := tool.Execute(context.Background(), `{"command":["sleep","5"]}`)
	require.NoError(t, err)
	assert.Equal(t, int64(exitCodeTimeout), gjson.Get(out, "metadata.exit_code").Int())
}

func TestShellTool_MissingBinary(t *testing.T) {
	out, err := NewShellTool().Execute(context.Background(), `{"command":["llmbridge-no-such-binary"]}`)
	require.NoError(t, err)
	assert.Equal(t, int64(exitCodeNotFound), gjson.Get(out, "metadata.exit_code").Int())
	assert.NotEmpty(t, gjson.Get(out, "output").String())
}

func TestShellTool_InvalidArguments(t *testing.T) {
	_, err := NewShellTool().Execute(context.Background(), `{"command":[]}`)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := WithDefaults()

	tool, ok := r.Get(llm.ShellToolName)
	require.True(t, ok)
	assert.Equal(t, llm.ShellToolDefinition(), tool.Definition())
	assert.Equal(t, []string{llm.ShellToolName}, r.Names())
	assert.Len(t, r.Definitions(), 1)

	assert.Error(t, r.Register(NewShellTool()), "duplicate names are rejected")

	_, ok = r.Get("missing")
	assert.False(t, ok)
}
