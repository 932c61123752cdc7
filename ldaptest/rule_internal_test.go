package ldaptest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeServer struct {
	calls       []string
	importErr   map[string]error
	startErr    error
	shutDownErr error
}

func (f *fakeServer) ImportFromLDIF(clear bool, path string) (int, error) {
	if clear {
		f.calls = append(f.calls, "import-clear "+path)
	} else {
		f.calls = append(f.calls, "import "+path)
	}
	return 1, f.importErr[path]
}

func (f *fakeServer) StartListening() error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeServer) ListenPort() int {
	return 10389
}

func (f *fakeServer) ShutDown(closeExisting bool) error {
	if closeExisting {
		f.calls = append(f.calls, "shutdown-close")
	} else {
		f.calls = append(f.calls, "shutdown")
	}
	return f.shutDownErr
}

func (f *fakeServer) Clear() {
	f.calls = append(f.calls, "clear")
}

func newFakeRule(t *testing.T, fake *fakeServer, files ...string) *Rule {
	return &Rule{ctl: fake, files: files, log: zaptest.NewLogger(t)}
}

func TestEvaluateOrder(t *testing.T) {
	fake := &fakeServer{}
	r := newFakeRule(t, fake, "a.ldif", "b.ldif", "c.ldif")
	err := r.Evaluate(t.Name(), func() error {
		fake.calls = append(fake.calls, "body")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"import-clear a.ldif",
		"import b.ldif",
		"import c.ldif",
		"start",
		"body",
		"shutdown-close",
		"clear",
	}, fake.calls)
}

func TestEvaluateImportFailure(t *testing.T) {
	importErr := errors.New("unreadable")
	fake := &fakeServer{importErr: map[string]error{"b.ldif": importErr}}
	r := newFakeRule(t, fake, "a.ldif", "b.ldif", "c.ldif")
	err := r.Evaluate(t.Name(), func() error {
		fake.calls = append(fake.calls, "body")
		return nil
	})
	require.ErrorIs(t, err, ErrSeed)
	assert.ErrorIs(t, err, importErr)
	assert.Equal(t, []string{"import-clear a.ldif", "import b.ldif"}, fake.calls)
}

func TestEvaluateStartFailure(t *testing.T) {
	startErr := errors.New("address in use")
	fake := &fakeServer{startErr: startErr}
	r := newFakeRule(t, fake, "a.ldif")
	err := r.Evaluate(t.Name(), func() error {
		fake.calls = append(fake.calls, "body")
		return nil
	})
	require.ErrorIs(t, err, ErrStart)
	assert.ErrorIs(t, err, startErr)
	assert.Equal(t, []string{"import-clear a.ldif", "start"}, fake.calls)
}

func TestEvaluateTeardownFailureIsNotMasked(t *testing.T) {
	stopErr := errors.New("listener stuck")
	bodyErr := errors.New("body failed")
	fake := &fakeServer{shutDownErr: stopErr}
	r := newFakeRule(t, fake)

	err := r.Evaluate(t.Name(), func() error { return bodyErr })
	assert.ErrorIs(t, err, bodyErr)
	assert.ErrorIs(t, err, ErrTeardown)
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, []string{"start", "shutdown-close", "clear"}, fake.calls)

	fake.calls = nil
	err = r.Evaluate(t.Name(), func() error { return nil })
	assert.ErrorIs(t, err, ErrTeardown)
	assert.NotErrorIs(t, err, bodyErr)
}

func TestEvaluateTeardownFailureWhilePanicking(t *testing.T) {
	fake := &fakeServer{shutDownErr: errors.New("listener stuck")}
	r := newFakeRule(t, fake)
	assert.PanicsWithValue(t, "boom", func() {
		_ = r.Evaluate(t.Name(), func() error { panic("boom") })
	})
	assert.Equal(t, []string{"start", "shutdown-close", "clear"}, fake.calls)
}

// Records failures instead of ending the test.
type recordingTB struct {
	testing.TB
	errors []string
	fatal  bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Name() string {
	return "recording"
}

func (r *recordingTB) Error(args ...any) {
	r.errors = append(r.errors, "error")
}

func (r *recordingTB) Fatal(args ...any) {
	r.errors = append(r.errors, "fatal")
	r.fatal = true
}

func TestRunReportsTeardownFailure(t *testing.T) {
	fake := &fakeServer{shutDownErr: errors.New("listener stuck")}
	r := newFakeRule(t, fake)
	tb := &recordingTB{TB: t}
	ran := false
	r.Run(tb, func(testing.TB) { ran = true })
	assert.True(t, ran)
	assert.Equal(t, []string{"error"}, tb.errors)
}

func TestRunReportsSetupFailure(t *testing.T) {
	fake := &fakeServer{startErr: errors.New("address in use")}
	r := newFakeRule(t, fake)
	tb := &recordingTB{TB: t}
	r.Run(tb, func(testing.TB) {})
	// The recording Fatal does not stop the goroutine, so Run carries on.
	assert.True(t, tb.fatal)
	assert.Equal(t, "fatal", tb.errors[0])
}
