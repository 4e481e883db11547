package utils

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"perceptive/config"
)

// ErrUsage marks command-line mistakes; the caller prints usage and exits 2
var ErrUsage = errors.New("usage error")

// Arguments is the parsed command line
type Arguments struct {
	// Image is a local image path or an http(s) URL
	Image string

	ConfigFile string
	Help       bool

	// Flags is handed to config.Load so explicit flags override other sources
	Flags *pflag.FlagSet
}

// NewFlagSet declares every command-line flag
func NewFlagSet(name string) *pflag.FlagSet {
	def := config.Default()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	fs.IntP(config.KeyDistance, "d", def.MaxDistance, "maximum Hamming distance of a match")
	fs.StringP(config.KeyGateway, "g", def.GatewayURL, "use the IPFS gateway at this URL")
	fs.StringP(config.KeyServer, "s", "", fmt.Sprintf("use the IPFS server at this address, with optional port, e.g. %s", config.DefaultDaemonAddr))
	fs.StringP(config.KeyLocalIndex, "l", "", "load the index from a local JSON or sqlite (.db) file")
	fs.Bool(config.KeyForceGateway, false, "never use the IPFS server, even if reachable")
	fs.String(config.KeyExportIndex, "", "write the resolved index to this sqlite file")
	fs.String(config.KeyIndexPath, def.IndexPath, "IPFS path of the index")
	fs.String(config.KeyHasher, def.Hasher, "perceptual hash implementation: gocv or goimagehash")
	fs.Duration(config.KeyGatewayTimeout, def.GatewayTimeout, "timeout of each gateway request")
	fs.Duration(config.KeyDaemonTimeout, def.DaemonTimeout, "timeout of each IPFS server call")
	fs.String("config", "", "YAML config file")
	fs.Bool(config.KeyDebug, false, "write a debug log")
	fs.String(config.KeyLogFile, def.LogFile, "debug log path")
	fs.BoolP("help", "h", false, "show help")
	fs.SetOutput(io.Discard)
	return fs
}

// ParseArguments parses args (without the program name)
func ParseArguments(name string, args []string) (*Arguments, error) {
	fs := NewFlagSet(name)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return &Arguments{Help: true, Flags: fs}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	parsed := &Arguments{Flags: fs}
	parsed.Help, _ = fs.GetBool("help")
	parsed.ConfigFile, _ = fs.GetString("config")
	if parsed.Help {
		return parsed, nil
	}

	if fs.Changed(config.KeyGateway) && fs.Changed(config.KeyServer) {
		return nil, fmt.Errorf("%w: --%s and --%s are mutually exclusive", ErrUsage, config.KeyGateway, config.KeyServer)
	}

	switch fs.NArg() {
	case 0:
		return nil, fmt.Errorf("%w: missing image path or URL", ErrUsage)
	case 1:
		parsed.Image = fs.Arg(0)
	default:
		return nil, fmt.Errorf("%w: expected one image, got %d", ErrUsage, fs.NArg())
	}

	return parsed, nil
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage(w io.Writer, name string, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s [flags] IMAGE\n", name)
	fmt.Fprintf(w, "\nIMAGE is the path to a local image file, or an http url for a remote image.\n")
	fmt.Fprintf(w, "\nFlags:\n")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  %s photo.jpg\n", name)
	fmt.Fprintf(w, "  %s --ipfs_server=%s --distance=4 https://example.com/photo.png\n", name, config.DefaultDaemonAddr)
	fmt.Fprintf(w, "  %s --local_index=index.json photo.jpg\n", name)
}
