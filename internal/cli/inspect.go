package cli

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/spf13/cobra"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/compiler"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	PlatformDir string
	Wake        string // wake classes to plan the clock tree for
	Disasm      bool
	Packed      string // directory to write packed tables to
	PackedFmt   string // "bin" | "ihex"
	LoadAddr    uint32 // ihex load address of each table
}

// ihexLineLength is the number of data bytes per Intel HEX record.
const ihexLineLength = 16

// PlatformInfo summarizes one compiled platform.
type PlatformInfo struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Source       string          `json:"source"`
	Flags        []string        `json:"flags,omitempty"`
	Depths       []DepthInfo     `json:"depths"`
	SnapshotSize int             `json:"snapshot_size"`
	Plan         *clocktree.Plan `json:"plan,omitempty"`
}

// DepthInfo describes the program of one sleep depth.
type DepthInfo struct {
	Depth        string `json:"depth"`
	Supported    bool   `json:"supported"`
	Sleeps       bool   `json:"sleeps"`
	Instructions int    `json:"instructions"`
	Chunks       int    `json:"chunks"`
	Hash         string `json:"hash,omitempty"`
	Listing      string `json:"listing,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [platform...]",
		Short: "Show compiled platforms",
		Long: `Show the compiled form of platforms: supported depths, program sizes
in residency chunks, program hashes and the clock-tree snapshot size.

--wake plans the clock tree for a wake set without touching hardware,
listing the domains kept running and the PLLs powered down. --disasm
prints the program listings. --packed writes each program as a packed
little-endian table, <dir>/<platform>_<depth>.bin. With
--packed-format ihex the tables are written as Intel HEX images
(<platform>_<depth>.hex) placed at --load-addr, ready for a bootloader or
JTAG probe.

Examples:
  lpsuspend inspect
  lpsuspend inspect stx7111 --wake ir,hdmi
  lpsuspend inspect stx7105 --disasm
  lpsuspend inspect devboard --platform-dir ./platforms --packed ./out
  lpsuspend inspect stx7111 --packed ./out --packed-format ihex --load-addr 0x0c000000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PlatformDir, "platform-dir", "", "CUE platform directory (default: builtin platforms)")
	cmd.Flags().StringVar(&opts.Wake, "wake", "", "plan the clock tree for these wake classes (e.g. ir,hdmi or none)")
	cmd.Flags().BoolVar(&opts.Disasm, "disasm", false, "include program listings")
	cmd.Flags().StringVar(&opts.Packed, "packed", "", "write packed program tables to this directory")
	cmd.Flags().StringVar(&opts.PackedFmt, "packed-format", "bin", "packed table format (bin|ihex)")
	cmd.Flags().Uint32Var(&opts.LoadAddr, "load-addr", 0, "load address of ihex tables")

	return cmd
}

func runInspect(opts *InspectOptions, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var wake *wakeup.Set
	if cmd.Flags().Changed("wake") {
		set, err := wakeup.ParseSet(opts.Wake)
		if err != nil {
			return commandError(formatter, ErrCodeBadFlag, err.Error())
		}
		wake = &set
	}

	if opts.PackedFmt != "bin" && opts.PackedFmt != "ihex" {
		return commandError(formatter, ErrCodeBadFlag, fmt.Sprintf("invalid packed format %q: must be bin or ihex", opts.PackedFmt))
	}

	loadResult, loadErrors := LoadPlatforms(opts.PlatformDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return loadFailure(formatter, loadErrors[0])
	}

	platforms, err := selectPlatforms(loadResult.Platforms, names)
	if err != nil {
		return commandError(formatter, ErrCodeUnknownPlatform, err.Error())
	}

	infos := make([]PlatformInfo, 0, len(platforms))
	for _, p := range platforms {
		infos = append(infos, describePlatform(p, wake, opts.Disasm))
		if opts.Packed != "" {
			if err := writePacked(opts.Packed, p, opts.PackedFmt, opts.LoadAddr); err != nil {
				return commandError(formatter, ErrCodeGeneric, err.Error())
			}
			formatter.VerboseLog("Wrote packed tables for %s to %s", p.Name, opts.Packed)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	for _, info := range infos {
		printPlatformInfo(formatter, info)
	}
	return nil
}

// selectPlatforms returns the named platforms in argument order, or all of
// them in name order.
func selectPlatforms(all []*compiler.Platform, names []string) ([]*compiler.Platform, error) {
	byName := make(map[string]*compiler.Platform, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}
	if len(names) == 0 {
		out := append([]*compiler.Platform(nil), all...)
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	out := make([]*compiler.Platform, 0, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown platform %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

func describePlatform(p *compiler.Platform, wake *wakeup.Set, disasm bool) PlatformInfo {
	desc := &platform.Descriptor{Name: p.Name, Programs: p.Programs, Flags: p.Flags, ChunkBytes: p.ChunkBytes}
	info := PlatformInfo{
		Name:         p.Name,
		Description:  p.Description,
		Source:       p.Source,
		Flags:        p.Flags.Names(),
		SnapshotSize: p.Clocks.SnapshotSize(),
	}

	for _, depth := range ir.Depths {
		prog := desc.Program(depth)
		d := DepthInfo{
			Depth:        depth.String(),
			Supported:    desc.Supports(depth),
			Sleeps:       p.Flags.Sleeps(depth),
			Instructions: prog.Len(),
			Chunks:       desc.Chunks(depth),
		}
		if prog != nil {
			if hash, err := ir.ProgramHash(prog); err == nil {
				d.Hash = hash
			}
			if disasm {
				d.Listing = ir.Disassemble(prog)
			}
		}
		info.Depths = append(info.Depths, d)
	}

	if wake != nil {
		plan := p.Clocks.Plan(*wake)
		info.Plan = &plan
	}
	return info
}

// writePacked writes every program of p as a little-endian table, either raw
// or as an Intel HEX image at loadAddr.
func writePacked(dir string, p *compiler.Platform, format string, loadAddr uint32) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, depth := range p.Depths() {
		data := ir.EncodeBytes(p.Programs[depth], binary.LittleEndian)
		base := filepath.Join(dir, fmt.Sprintf("%s_%s", p.Name, depth))

		if format == "bin" {
			if err := os.WriteFile(base+".bin", data, 0644); err != nil {
				return fmt.Errorf("write %s.bin: %w", base, err)
			}
			continue
		}
		if err := writeIntelHex(base+".hex", data, loadAddr); err != nil {
			return err
		}
	}
	return nil
}

func writeIntelHex(path string, data []byte, loadAddr uint32) error {
	if uint64(loadAddr)+uint64(len(data)) > 1<<32 {
		return fmt.Errorf("table of %d bytes does not fit above load address 0x%08x", len(data), loadAddr)
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(loadAddr, data); err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := mem.DumpIntelHex(f, ihexLineLength); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printPlatformInfo(f *OutputFormatter, info PlatformInfo) {
	w := f.Writer
	fmt.Fprintf(w, "%s (%s)\n", info.Name, info.Source)
	if info.Description != "" {
		fmt.Fprintf(w, "  %s\n", info.Description)
	}
	if len(info.Flags) > 0 {
		fmt.Fprintf(w, "  flags: %s\n", strings.Join(info.Flags, ", "))
	}
	fmt.Fprintf(w, "  snapshot: %d register(s)\n", info.SnapshotSize)

	for _, d := range info.Depths {
		if !d.Supported {
			fmt.Fprintf(w, "  %-12s unsupported\n", d.Depth)
			continue
		}
		fmt.Fprintf(w, "  %-12s %d instruction(s), %d chunk(s)", d.Depth, d.Instructions, d.Chunks)
		if !d.Sleeps {
			fmt.Fprint(w, ", no halt")
		}
		fmt.Fprintln(w)
		if d.Hash != "" {
			fmt.Fprintf(w, "    hash: %s\n", d.Hash)
		}
		if d.Listing != "" {
			for _, line := range strings.Split(strings.TrimRight(d.Listing, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}

	if info.Plan != nil {
		printPlan(f, info.Plan)
	}
	fmt.Fprintln(w)
}

func printPlan(f *OutputFormatter, plan *clocktree.Plan) {
	w := f.Writer
	fmt.Fprintln(w, "  plan:")
	for _, a := range plan.Dividers {
		fmt.Fprintf(w, "    divider 0x%08x <- 0x%x\n", a.Addr, a.Value)
	}
	for _, a := range plan.Selects {
		fmt.Fprintf(w, "    select  0x%08x <- 0x%08x\n", a.Addr, a.Value)
	}

	running := make([]string, 0, len(plan.Running))
	for name := range plan.Running {
		running = append(running, name)
	}
	sort.Strings(running)
	for _, name := range running {
		fmt.Fprintf(w, "    running %s (source %d)\n", name, plan.Running[name])
	}
	if len(plan.PLLsOff) > 0 {
		fmt.Fprintf(w, "    power off %s (mask 0x%x)\n", strings.Join(plan.PLLsOff, ", "), plan.PowerOff)
	}
}
