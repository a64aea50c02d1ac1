package step_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/step"
	"itemstep/pkg/batch/step/processor"
	"itemstep/pkg/batch/step/reader"
)

type user struct {
	Name  string `row:"name"`
	Email string `row:"email"`
	Age   uint8  `row:"age"`
}

const usersFile = "name;email;age\nJohn Doe;john.doe@email.com;33\n\nbroken;line\nJane Roe;jane@email.com;28\n"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func schemaReader(t *testing.T) core.ItemReader[user] {
	t.Helper()
	r, err := reader.NewSchemaItemReader[user]()
	require.NoError(t, err)
	return r
}

func uppercase() core.BatchProcessor[user] {
	return processor.Each(func(u *user) error {
		u.Name = strings.ToUpper(u.Name)
		u.Email = strings.ToUpper(u.Email)
		return nil
	})
}

type recordingListener struct {
	before, after []core.StepStatus
}

func (l *recordingListener) BeforeStep(_ context.Context, se *core.StepExecution) {
	l.before = append(l.before, se.Status)
}

func (l *recordingListener) AfterStep(_ context.Context, se *core.StepExecution) {
	l.after = append(l.after, se.Status)
}

type recordingWriter struct {
	written []user
	err     error
}

func (w *recordingWriter) Write(_ context.Context, items []user) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, items...)
	return nil
}

func TestStep_EndToEnd(t *testing.T) {
	s := step.NewStep[user](1, "users", writeFile(t, "name;email;age\nJohn Doe;john.doe@email.com;33\n"), ";")
	assert.Equal(t, core.StatusStarting, s.Status())

	s.SetReader(schemaReader(t)).SetProcessor(uppercase())
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, core.StatusOK, s.Status())
	assert.Equal(t, core.StatusProcessing, s.LastStage())
	assert.Equal(t, []user{{Name: "JOHN DOE", Email: "JOHN.DOE@EMAIL.COM", Age: 33}}, s.Items())
	assert.Equal(t,
		[]core.StepStatus{core.StatusStarting, core.StatusReading, core.StatusProcessing, core.StatusOK},
		s.Execution().History)
}

func TestStep_ReadOnly(t *testing.T) {
	s := step.NewStep[user](2, "users", writeFile(t, usersFile), ";").SetReader(schemaReader(t))
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, core.StatusOK, s.Status())
	assert.Equal(t, core.StatusReading, s.LastStage())
	require.Len(t, s.Items(), 2)
	assert.Equal(t, "John Doe", s.Items()[0].Name, "処理なしでは変更されない")

	se := s.Execution()
	assert.Equal(t, 2, se.ReadCount)
	assert.Equal(t, 1, se.BlankCount)
	assert.Equal(t, 1, se.SkipReadCount)
	assert.Equal(t, []int{4}, se.SkippedLines)
	assert.False(t, se.Entered(core.StatusProcessing))
}

func TestStep_NoReader(t *testing.T) {
	l := &recordingListener{}
	s := step.NewStep[user](3, "idle", "unused.txt", ";").SetProcessor(uppercase()).RegisterListener(l)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, core.StatusStarting, s.Status())
	assert.Equal(t, core.StatusStarting, s.LastStage())
	assert.Equal(t, []core.StepStatus{core.StatusStarting}, s.Execution().History)
	assert.Empty(t, s.Items())
	assert.Empty(t, l.before, "READING に入らない実行ではリスナーを呼ばない")
}

func TestStep_ReadFailures(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want error
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.txt") }, reader.ErrFileAccess},
		{"empty file", func(t *testing.T) string { return writeFile(t, "") }, reader.ErrMissingHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := step.NewStep[user](4, "users", tt.path(t), ";").SetReader(schemaReader(t)).SetProcessor(uppercase())

			err := s.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, core.StatusKO, s.Status())
			assert.Equal(t, core.StatusReading, s.LastStage())
			assert.False(t, s.Execution().Entered(core.StatusProcessing))
			require.Len(t, s.Execution().Failures, 1)
		})
	}
}

type nilReader struct{}

func (nilReader) Read(context.Context, string, string) (*core.ReadResult[user], error) {
	return nil, nil
}

func TestStep_NilReadResult(t *testing.T) {
	l := &recordingListener{}
	s := step.NewStep[user](12, "users", "unused", ";").
		SetReader(nilReader{}).
		SetProcessor(uppercase()).
		RegisterListener(l)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, step.ErrNilReadResult)
	assert.Equal(t, core.StatusKO, s.Status())
	assert.Equal(t, core.StatusReading, s.LastStage())
	assert.Empty(t, s.Items())
	assert.Equal(t, []core.StepStatus{core.StatusKO}, l.after, "AfterStep は KO で呼ばれる")
}

func TestStep_ProcessorNotBound(t *testing.T) {
	l := &recordingListener{}
	s := step.NewStep[user](5, "users", writeFile(t, usersFile), ";").
		SetReader(schemaReader(t)).
		SetProcessingEnabled(true).
		RegisterListener(l)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, step.ErrProcessorNotBound)
	assert.Equal(t, core.StatusKO, s.Status())
	assert.Equal(t, core.StatusStarting, s.LastStage())
	assert.Empty(t, l.before)
}

func TestStep_ProcessorContractViolations(t *testing.T) {
	grow := core.BatchProcessorFunc[user](func(_ context.Context, items []user) ([]user, error) {
		return append(items, user{Name: "extra"}), nil
	})
	replace := core.BatchProcessorFunc[user](func(_ context.Context, items []user) ([]user, error) {
		return append([]user(nil), items...), nil
	})
	boom := errors.New("boom")
	failing := core.BatchProcessorFunc[user](func(_ context.Context, items []user) ([]user, error) {
		return items, boom
	})

	tests := []struct {
		name string
		p    core.BatchProcessor[user]
		want error
	}{
		{"grows the batch", grow, step.ErrBatchGrown},
		{"replaces the batch", replace, step.ErrBatchReplaced},
		{"returns an error", failing, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := step.NewStep[user](6, "users", writeFile(t, usersFile), ";").SetReader(schemaReader(t)).SetProcessor(tt.p)

			err := s.Run(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, core.StatusKO, s.Status())
			assert.Equal(t, core.StatusProcessing, s.LastStage())
		})
	}
}

func TestStep_FilterCount(t *testing.T) {
	adults := processor.Filter(func(u *user) bool { return u.Age >= 30 })
	s := step.NewStep[user](7, "users", writeFile(t, usersFile), ";").SetReader(schemaReader(t)).SetProcessor(adults)

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 1, s.Execution().FilterCount)
}

func TestStep_Writer(t *testing.T) {
	w := &recordingWriter{}
	s := step.NewStep[user](8, "users", writeFile(t, usersFile), ";").
		SetReader(schemaReader(t)).
		SetProcessor(uppercase()).
		SetWriter(w)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, core.StatusOK, s.Status())
	assert.Equal(t, core.StatusWriting, s.LastStage())
	assert.Equal(t, s.Items(), w.written)
	assert.Equal(t, 2, s.Execution().WriteCount)

	w.err = errors.New("disk full")
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, w.err)
	assert.Equal(t, core.StatusKO, s.Status())
	assert.Equal(t, core.StatusWriting, s.LastStage())
	assert.Zero(t, s.Execution().WriteCount)
}

func TestStep_RerunStartsFresh(t *testing.T) {
	path := writeFile(t, usersFile)
	s := step.NewStep[user](9, "users", path, ";").SetReader(schemaReader(t)).SetProcessor(uppercase())

	require.NoError(t, s.Run(context.Background()))
	first := s.Execution()
	require.Len(t, s.Items(), 2)

	require.NoError(t, os.Remove(path))
	require.Error(t, s.Run(context.Background()))
	second := s.Execution()

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, core.StatusKO, second.Status)
	assert.Empty(t, s.Items(), "前回のバッチは破棄される")
	assert.Equal(t, core.StatusOK, first.Status, "コピーは後の実行の影響を受けない")
}

func TestStep_Listeners(t *testing.T) {
	l := &recordingListener{}
	s := step.NewStep[user](10, "users", writeFile(t, usersFile), ";").
		SetReader(schemaReader(t)).
		RegisterListener(l)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []core.StepStatus{core.StatusStarting}, l.before)
	assert.Equal(t, []core.StepStatus{core.StatusOK}, l.after)
}

// blockingReader は release が閉じられるまで Read を返しません。
type blockingReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingReader) Read(ctx context.Context, _, _ string) (*core.ReadResult[user], error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &core.ReadResult[user]{Items: []user{{Name: "a"}}, LineCount: 1}, nil
}

func TestStep_ConcurrentRunRejected(t *testing.T) {
	r := &blockingReader{started: make(chan struct{}), release: make(chan struct{})}
	s := step.NewStep[user](11, "users", "unused", ";").SetReader(r)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	<-r.started

	running := s.Execution().ID
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, step.ErrStepAlreadyRunning)
	assert.Equal(t, running, s.Execution().ID, "実行中の StepExecution は変更されない")
	assert.Equal(t, core.StatusReading, s.Status())

	close(r.release)
	require.NoError(t, <-done)
	assert.Equal(t, core.StatusOK, s.Status())
}
