package saga

import (
	"fmt"
	"os"
	"sync"

	"github.com/thomas-vilte/materelease/internal/builder"
	"github.com/thomas-vilte/materelease/internal/models"
)

// journal is a shared, ordered log of what the saga did.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type call struct {
	op     string
	args   []any
	ticket uint64
}

// fakePorts implements VCS, API and Builder by handing out tickets and
// remembering the calls; outcomes are injected by the test.
type fakePorts struct {
	journal *journal
	next    uint64
	calls   []call
	closed  bool
}

func (f *fakePorts) record(op string, args ...any) uint64 {
	f.journal.add("%s", op)
	if f.closed {
		f.calls = append(f.calls, call{op: op, args: args})
		return 0
	}
	f.next++
	f.calls = append(f.calls, call{op: op, args: args, ticket: f.next})
	return f.next
}

func (f *fakePorts) ops() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakePorts) last() call {
	return f.calls[len(f.calls)-1]
}

func (f *fakePorts) CreateTag(dir, tag, message string, id models.Identity) uint64 {
	return f.record("CreateTag", dir, tag, message, id)
}

func (f *fakePorts) PushTag(dir, tag string) uint64 {
	return f.record("PushTag", dir, tag)
}

func (f *fakePorts) DeleteTag(dir, tag string) uint64 {
	return f.record("DeleteTag", dir, tag)
}

func (f *fakePorts) DeleteRemoteTag(dir, tag string) uint64 {
	return f.record("DeleteRemoteTag", dir, tag)
}

func (f *fakePorts) Commit(dir, message string, id models.Identity) uint64 {
	return f.record("Commit", dir, message, id)
}

func (f *fakePorts) Push(dir, branch string) uint64 {
	return f.record("Push", dir, branch)
}

func (f *fakePorts) CreateRelease(token string, handle models.RepositoryHandle, draft models.ReleaseDraft) uint64 {
	return f.record("CreateRelease", token, handle, draft)
}

func (f *fakePorts) UploadAsset(token, uploadURL, path string) uint64 {
	return f.record("UploadAsset", token, uploadURL, path)
}

func (f *fakePorts) DeleteRelease(token string, handle models.RepositoryHandle, id int64) uint64 {
	return f.record("DeleteRelease", token, handle, id)
}

func (f *fakePorts) Build(req builder.Request) uint64 {
	return f.record("Build", req)
}

type recordingSink struct {
	journal *journal
	mu      sync.Mutex
	steps   []Step
	texts   []string
	notes   []Notification
	reports []Report
	settled chan Report
}

func newRecordingSink(j *journal) *recordingSink {
	return &recordingSink{journal: j, settled: make(chan Report, 8)}
}

func (s *recordingSink) StepChanged(_ string, step Step, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	s.texts = append(s.texts, text)
}

func (s *recordingSink) Finished(n Notification) {
	s.journal.add("finished")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *recordingSink) Settled(r Report) {
	s.journal.add("settled")
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
	s.settled <- r
}

func (s *recordingSink) stepList() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Step(nil), s.steps...)
}

func (s *recordingSink) lastNote() Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[len(s.notes)-1]
}

func (s *recordingSink) lastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[len(s.reports)-1]
}

type fakeVersionFile struct {
	journal *journal
	err     error
	written []string
}

func (v *fakeVersionFile) Write(version string) error {
	v.journal.add("WriteVersion")
	if v.err != nil {
		return v.err
	}
	v.written = append(v.written, version)
	return nil
}

// fakeArchiver writes a small file at out so the run has a real archive.
func fakeArchiver(j *journal, ok bool) Archiver {
	return func(root, out string) bool {
		j.add("Archive")
		if !ok {
			return false
		}
		return os.WriteFile(out, []byte("zip"), 0644) == nil
	}
}
