package detection

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sync"
)

// ModelInfo describes the tensor shapes a detector consumes and produces.
type ModelInfo struct {
	InputSize     int
	NumFeatures   int
	NumDetections int
	NumClasses    int
}

// OutputLen is the expected flat output length.
func (m ModelInfo) OutputLen() int { return m.NumFeatures * m.NumDetections }

// Detector maps a preprocessed CHW RGB tensor to raw per-anchor output.
// The returned slice may be reused by the next Infer call.
type Detector interface {
	Infer(tensor []float32) ([]float32, error)
	Model() ModelInfo
	Close() error
}

// NullDetector returns an all-zero output of the correct shape, which
// decodes to no detections.
type NullDetector struct {
	Info ModelInfo
	out  []float32
}

func (n *NullDetector) Infer([]float32) ([]float32, error) {
	if len(n.out) != n.Info.OutputLen() {
		n.out = make([]float32, n.Info.OutputLen())
	}
	return n.out, nil
}

func (n *NullDetector) Model() ModelInfo { return n.Info }
func (n *NullDetector) Close() error     { return nil }

// ProcessDetector runs an external inference command and exchanges tensors
// with it over stdin/stdout. Each message is a big-endian uint32 element
// count followed by that many little-endian float32 values. The process is
// started lazily on the first Infer call.
type ProcessDetector struct {
	argv   []string
	info   ModelInfo
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	closed  bool
	out     []float32
	scratch []byte
}

// NewProcessDetector validates argv and returns an unstarted detector.
func NewProcessDetector(argv []string, info ModelInfo, logger *slog.Logger) (*ProcessDetector, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("detection: empty detector command")
	}
	if info.OutputLen() <= 0 || info.InputSize <= 0 {
		return nil, fmt.Errorf("detection: invalid model info %+v", info)
	}
	return &ProcessDetector{argv: append([]string(nil), argv...), info: info, logger: logger}, nil
}

func (d *ProcessDetector) Model() ModelInfo { return d.info }

// Infer sends tensor to the process and reads one output message. The
// returned slice is reused by the next call.
func (d *ProcessDetector) Infer(tensor []float32) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDetectorClosed
	}
	if err := d.ensureStarted(); err != nil {
		return nil, err
	}
	var err error
	if d.scratch, err = writeTensor(d.stdin, tensor, d.scratch); err != nil {
		d.fail()
		return nil, fmt.Errorf("detection: write tensor: %w", err)
	}
	if d.out, d.scratch, err = readTensor(d.stdout, d.out, d.scratch); err != nil {
		d.fail()
		return nil, fmt.Errorf("detection: read tensor: %w", err)
	}
	return d.out, nil
}

// Close stops the process. Further Infer calls return ErrDetectorClosed.
func (d *ProcessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.shutdown()
}

func (d *ProcessDetector) ensureStarted() error {
	if d.started {
		return nil
	}
	cmd := exec.Command(d.argv[0], d.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("detection: create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("detection: create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("detection: start %s: %w", d.argv[0], err)
	}
	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReaderSize(stdout, 1<<16)
	d.started = true
	if d.logger != nil {
		d.logger.Info("detector process started", "command", d.argv[0], "pid", cmd.Process.Pid)
	}
	return nil
}

// fail tears down a process whose stream is out of sync; the next Infer
// restarts it.
func (d *ProcessDetector) fail() {
	if err := d.shutdown(); err != nil && d.logger != nil {
		d.logger.Warn("detector process exit", "error", err)
	}
}

func (d *ProcessDetector) shutdown() error {
	if !d.started {
		return nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}
	var err error
	if d.cmd != nil {
		err = d.cmd.Wait()
	}
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	return err
}

func writeTensor(w io.Writer, data []float32, scratch []byte) ([]byte, error) {
	need := 4 + 4*len(data)
	if cap(scratch) < need {
		scratch = make([]byte, need)
	}
	buf := scratch[:need]
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return scratch, err
}

const maxTensorLen = 1 << 26

func readTensor(r io.Reader, dst []float32, scratch []byte) ([]float32, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return dst, scratch, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n > maxTensorLen {
		return dst, scratch, fmt.Errorf("%w: tensor length %d", ErrMalformedOutput, n)
	}
	if cap(scratch) < 4*n {
		scratch = make([]byte, 4*n)
	}
	buf := scratch[:4*n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return dst, scratch, err
	}
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return dst, scratch, nil
}
