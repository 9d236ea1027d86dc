package specwriter_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcda-aps/specd/document"
	"github.com/bcda-aps/specd/specfile"
	"github.com/bcda-aps/specd/specwriter"
)

const t0 = 1600000000.0

func newWriter(t *testing.T, autoWrite bool) (*specwriter.Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dat")
	w := specwriter.New(specwriter.Config{
		Path:      path,
		Mode:      specfile.ErrorOnExisting,
		AutoWrite: autoWrite,
	})
	return w, path
}

// feedTuneMR drives one complete tune_mr run through w: 3 points of a
// motor sweep with a detector readback.
func feedTuneMR(t *testing.T, w *specwriter.Writer) {
	t.Helper()
	require.NoError(t, w.Start(document.Start{
		UID:       "abc123",
		Time:      t0,
		ScanID:    108,
		PlanName:  "tune_mr",
		Motors:    []string{"motor"},
		Detectors: []string{"det"},
	}))
	require.NoError(t, w.Descriptor(document.Descriptor{
		UID:  "desc1",
		Name: "primary",
		DataKeys: []document.DataKey{
			{Name: "motor", DType: "number"},
			{Name: "det", DType: "number"},
		},
	}))
	points := []struct {
		motor, det float64
	}{{-1, 100}, {0, 200}, {1, 150}}
	for i, p := range points {
		require.NoError(t, w.Event(document.Event{
			Descriptor: "desc1",
			Time:       t0 + float64(i+1),
			SeqNum:     i + 1,
			Data:       map[string]interface{}{"motor": p.motor, "det": p.det},
		}))
	}
	require.NoError(t, w.Stop(document.Stop{
		Time:       t0 + 4,
		ExitStatus: "success",
		NumEvents:  map[string]int{"primary": 3},
	}))
}

func TestScenarioTuneMR(t *testing.T) {
	w, path := newWriter(t, true)
	feedTuneMR(t, w)

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "#S 108  tune_mr()\n")
	assert.Contains(t, content, "#N 3\n")
	assert.Contains(t, content, "#L motor  Epoch  Epoch_float  det\n")
	assert.Contains(t, content, "\n-1 1 1 100\n")
	assert.Contains(t, content, "\n0 2 2 200\n")
	assert.Contains(t, content, "\n1 3 3 150\n")
	assert.Contains(t, content, "uid = abc123")
	assert.Contains(t, content, "exit_status = success")
	assert.Contains(t, content, "num_events_primary = 3")
	assert.Equal(t, 1, strings.Count(content, "#S "))
}

func TestIdenticalStreamsProduceIdenticalScanBlocks(t *testing.T) {
	w1, path1 := newWriter(t, true)
	w2, path2 := newWriter(t, true)
	feedTuneMR(t, w1)
	feedTuneMR(t, w2)

	b1, err := ioutil.ReadFile(path1)
	require.NoError(t, err)
	b2, err := ioutil.ReadFile(path2)
	require.NoError(t, err)

	// the file headers embed different filenames; the scan blocks must
	// agree to the byte
	i1 := strings.Index(string(b1), "#S ")
	i2 := strings.Index(string(b2), "#S ")
	require.True(t, i1 > 0 && i2 > 0)
	assert.Equal(t, string(b1[i1:]), string(b2[i2:]))
}

func TestDuplicateRunRaisesAndDoesNotAppend(t *testing.T) {
	w, path := newWriter(t, true)
	feedTuneMR(t, w)

	err := w.WriteScan()
	require.Error(t, err)
	var dup specfile.DuplicateRunError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "abc123", dup.UID)

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "#S "))
}

func TestNonNumericColumnSubstitutesRowIndex(t *testing.T) {
	w, path := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{
		UID:       "run-str",
		Time:      t0,
		ScanID:    9,
		PlanName:  "count",
		Motors:    []string{"motor"},
		Detectors: []string{"det"},
	}))
	require.NoError(t, w.Descriptor(document.Descriptor{
		UID:  "desc1",
		Name: "primary",
		DataKeys: []document.DataKey{
			{Name: "motor"}, {Name: "det"}, {Name: "note"},
		},
	}))
	notes := []string{"a", "b", "blank"}
	for i, note := range notes {
		require.NoError(t, w.Event(document.Event{
			Descriptor: "desc1",
			Time:       t0 + float64(i+1),
			Data: map[string]interface{}{
				"motor": float64(i),
				"det":   float64(10 * i),
				"note":  note,
			},
		}))
	}
	require.NoError(t, w.Stop(document.Stop{Time: t0 + 4, ExitStatus: "success"}))

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	// order: motor first, det last, note holds its declared slot
	assert.Contains(t, content, "#L motor  note  Epoch  Epoch_float  det\n")
	// row 2's note cell is the row index; the value rides in a #U line
	assert.Contains(t, content, "\n2 2 3 3 20\n#U 2 note blank\n")
	assert.Contains(t, content, "#U 0 note a\n")
	assert.Contains(t, content, "#U 1 note b\n")
}

func TestBufferedCommentMergesIntoNextRun(t *testing.T) {
	w, path := newWriter(t, true)
	require.NoError(t, w.PutComment(specwriter.PhaseStart, "sample aligned, starting tune"))
	feedTuneMR(t, w)

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "sample aligned, starting tune")
	// buffered comments precede the table
	assert.Less(t, strings.Index(content, "sample aligned"), strings.Index(content, "#L "))
}

func TestUnknownCommentPhaseRejected(t *testing.T) {
	w, _ := newWriter(t, true)
	err := w.PutComment(specwriter.Phase("epilogue"), "nope")
	assert.Error(t, err)
}

func TestDeferredWrite(t *testing.T) {
	w, path := newWriter(t, false)
	feedTuneMR(t, w)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stop must not write with AutoWrite off")

	require.NoError(t, w.WriteScan())
	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "#S 108  tune_mr()")
}

func TestDuplicateDescriptorFailsFast(t *testing.T) {
	w, _ := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{UID: "r1", Time: t0}))
	desc := document.Descriptor{
		UID:      "desc1",
		Name:     "primary",
		DataKeys: []document.DataKey{{Name: "x"}},
	}
	require.NoError(t, w.Descriptor(desc))
	assert.Error(t, w.Descriptor(desc))
}

func TestDocumentsWhileIdleAreNoOps(t *testing.T) {
	w, path := newWriter(t, true)
	assert.NoError(t, w.Descriptor(document.Descriptor{UID: "d", Name: "primary"}))
	assert.NoError(t, w.Event(document.Event{Descriptor: "d"}))
	assert.NoError(t, w.Stop(document.Stop{Time: t0}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEventsWithForeignColumnsAreDropped(t *testing.T) {
	w, _ := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{UID: "r1", Time: t0}))
	require.NoError(t, w.Descriptor(document.Descriptor{
		UID:      "desc1",
		Name:     "primary",
		DataKeys: []document.DataKey{{Name: "x"}, {Name: "y"}},
	}))
	// extra key
	require.NoError(t, w.Event(document.Event{
		Descriptor: "desc1",
		Time:       t0 + 1,
		Data:       map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0},
	}))
	// missing key
	require.NoError(t, w.Event(document.Event{
		Descriptor: "desc1",
		Time:       t0 + 2,
		Data:       map[string]interface{}{"x": 1.0},
	}))
	// foreign stream
	require.NoError(t, w.Event(document.Event{
		Descriptor: "someone-else",
		Time:       t0 + 3,
		Data:       map[string]interface{}{"x": 1.0, "y": 2.0},
	}))
	assert.Zero(t, w.Rows())

	require.NoError(t, w.Event(document.Event{
		Descriptor: "desc1",
		Time:       t0 + 4,
		Data:       map[string]interface{}{"x": 1.0, "y": 2.0},
	}))
	assert.Equal(t, 1, w.Rows())
}

func TestBaselineStreamPopulatesPositioners(t *testing.T) {
	w, path := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{
		UID: "r1", Time: t0, ScanID: 3, PlanName: "count",
	}))
	require.NoError(t, w.Descriptor(document.Descriptor{
		UID:      "base1",
		Name:     "baseline",
		DataKeys: []document.DataKey{{Name: "m1"}, {Name: "m2"}},
	}))
	require.NoError(t, w.Descriptor(document.Descriptor{
		UID:      "desc1",
		Name:     "primary",
		DataKeys: []document.DataKey{{Name: "det"}},
	}))
	require.NoError(t, w.Event(document.Event{
		Descriptor: "base1",
		Time:       t0,
		Data:       map[string]interface{}{"m1": 1.5, "m2": -0.25},
	}))
	require.NoError(t, w.Event(document.Event{
		Descriptor: "desc1",
		Time:       t0 + 1,
		Data:       map[string]interface{}{"det": 42.0},
	}))
	require.NoError(t, w.Stop(document.Stop{Time: t0 + 2, ExitStatus: "success"}))

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "#O0 m1  m2\n")
	assert.Contains(t, content, "#o0 m1  m2\n")
	assert.Contains(t, content, "#P0 1.5  -0.25\n")
}

func TestNewFileWhileCollectingFails(t *testing.T) {
	w, _ := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{UID: "r1", Time: t0}))
	assert.Error(t, w.NewFile("other.dat"))
}

func TestNewStartDiscardsUnwrittenRun(t *testing.T) {
	w, path := newWriter(t, false)
	feedTuneMR(t, w)
	// the tune run was never written; a new start clears it
	require.NoError(t, w.Start(document.Start{UID: "r2", Time: t0 + 100, ScanID: 109, PlanName: "count"}))
	require.NoError(t, w.Stop(document.Stop{Time: t0 + 101, ExitStatus: "abort"}))
	require.NoError(t, w.WriteScan())

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.NotContains(t, content, "abc123")
	assert.Contains(t, content, "uid = r2")
	assert.Contains(t, content, "#S 109  count()")
}

func TestMetadataEmittedInLexicographicOrder(t *testing.T) {
	w, path := newWriter(t, true)
	require.NoError(t, w.Start(document.Start{
		UID: "r1", Time: t0, ScanID: 1, PlanName: "count",
		Metadata: map[string]interface{}{
			"zebra":      "last",
			"aardvark":   "first",
			"num_points": 3.0,
		},
	}))
	require.NoError(t, w.Stop(document.Stop{Time: t0 + 1, ExitStatus: "success"}))

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "#MD aardvark = first\n")
	assert.Contains(t, content, "#MD num_points = 3\n")
	assert.Contains(t, content, "#MD zebra = last\n")
	assert.Less(t, strings.Index(content, "#MD aardvark"), strings.Index(content, "#MD zebra"))
}
