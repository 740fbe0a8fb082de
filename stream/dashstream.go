package stream

// Kind tags which variant a DashStream holds.
type Kind uint8

const (
	KindFile Kind = iota
	KindPipe
	KindNet
	KindFifo
	KindStdout
	KindStderr
)

// DashStream is the sum of {FileStream, PipeStream, NetStream, FifoStream,
// Stdout, Stderr}. Every node stores its inputs and outputs as DashStream
// values; exactly one field is meaningful, selected by Kind.
type DashStream struct {
	Kind Kind
	File FileStream
	Pipe PipeStream
	Net  NetStream
	Fifo FifoStream
}

func FromFile(fs FileStream) DashStream { return DashStream{Kind: KindFile, File: fs} }
func FromPipe(p PipeStream) DashStream  { return DashStream{Kind: KindPipe, Pipe: p} }
func FromNet(n NetStream) DashStream    { return DashStream{Kind: KindNet, Net: n} }
func FromFifo(f FifoStream) DashStream  { return DashStream{Kind: KindFifo, Fifo: f} }

var (
	StdoutStream = DashStream{Kind: KindStdout}
	StderrStream = DashStream{Kind: KindStderr}
)

// Bufferable reports whether this stream, if a Pipe or Net, is marked for
// on-disk buffering. File/Fifo/Stdout/Stderr streams are never bufferable.
func (d DashStream) Bufferable() bool {
	switch d.Kind {
	case KindPipe:
		return d.Pipe.Bufferable
	case KindNet:
		return d.Net.Bufferable
	default:
		return false
	}
}

// SetBufferable marks a Pipe or Net stream bufferable; a no-op otherwise.
func (d DashStream) SetBufferable(v bool) DashStream {
	switch d.Kind {
	case KindPipe:
		d.Pipe.Bufferable = v
	case KindNet:
		d.Net.Bufferable = v
	}
	return d
}

// Endpoints returns (left, right, ok) for Pipe and Net streams; ok is false
// for streams without graph endpoints (File, Fifo, Stdout, Stderr).
func (d DashStream) Endpoints() (left, right NodeId, ok bool) {
	switch d.Kind {
	case KindPipe:
		return d.Pipe.Left, d.Pipe.Right, true
	case KindNet:
		return d.Net.Left, d.Net.Right, true
	default:
		return 0, 0, false
	}
}

func (d DashStream) String() string {
	switch d.Kind {
	case KindFile:
		return "file:" + d.File.Path
	case KindPipe:
		return "pipe"
	case KindNet:
		return "net"
	case KindFifo:
		return "fifo:" + d.Fifo.Path
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	default:
		return "stream?"
	}
}
