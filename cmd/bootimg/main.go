package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/122slavo122/DualBootPatcher/bootimg"
	"github.com/122slavo122/DualBootPatcher/ramdisk"
	"github.com/122slavo122/DualBootPatcher/stream"
)

func usage() {
	fmt.Println(`bootimg - Android boot image tool
Usage:
  bootimg info <image>                 # print header and entry layout
  bootimg unpack <image> [outdir]      # split image into payload files
  bootimg pack <dir> <image> [bump]    # rebuild image from an unpacked dir
  bootimg help

Flags:
  -v   verbose (debug logging)

pack reads <dir>/bootimg.props plus the payload files unpack produced
(kernel.img, ramdisk.img, second.img, dt.img; missing files become empty
segments). Passing "bump" appends the Bump trailer instead of the Samsung
SEAndroid one.`)
}

func main() {
	args := os.Args[1:]

	filtered := args[:0]
	for _, a := range args {
		if a == "-v" {
			logrus.SetLevel(logrus.DebugLevel)
			continue
		}
		filtered = append(filtered, a)
	}
	args = filtered

	if len(args) == 0 {
		usage()
		return
	}

	var err error
	switch args[0] {
	case "help", "-h", "--help":
		usage()
	case "info":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		err = runInfo(args[1])
	case "unpack":
		outdir := "."
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		if len(args) >= 3 {
			outdir = args[2]
		}
		err = runUnpack(args[1], outdir)
	case "pack":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		bump := len(args) >= 4 && args[3] == "bump"
		err = runPack(args[1], args[2], bump)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func openReader(path string) (*bootimg.Reader, *stream.File, error) {
	f, err := stream.Open(path)
	if err != nil {
		return nil, nil, err
	}

	r := bootimg.NewReader()
	if err := r.EnableFormatAll(); err != nil {
		f.Close()
		return nil, nil, err
	}
	if err := r.Open(f); err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

func runInfo(path string) error {
	r, f, err := openReader(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer r.Close()

	format, _ := r.Format()
	fmt.Printf("format:  %s\n", format)

	hdr, err := r.ReadHeader()
	if err != nil {
		return err
	}
	printHeader(hdr)

	buf := make([]byte, 4)
	for {
		entry, err := r.ReadEntry()
		if err != nil {
			break
		}
		typ, _ := entry.Type()
		size, _ := entry.Size()
		line := fmt.Sprintf("entry:   %-20s %10d bytes", typ, size)
		if typ == bootimg.EntryRamdisk && size > 0 {
			if n, err := r.ReadData(buf); err == nil && n > 0 {
				line += fmt.Sprintf("  (%s)", ramdisk.Detect(buf[:n]))
			}
		}
		fmt.Println(line)
	}
	return nil
}

func printHeader(hdr *bootimg.Header) {
	if v, ok := hdr.KernelAddress(); ok {
		fmt.Printf("kernel address:     0x%08x\n", v)
	}
	if v, ok := hdr.RamdiskAddress(); ok {
		fmt.Printf("ramdisk address:    0x%08x\n", v)
	}
	if v, ok := hdr.SecondBootAddress(); ok {
		fmt.Printf("secondboot address: 0x%08x\n", v)
	}
	if v, ok := hdr.KernelTagsAddress(); ok {
		fmt.Printf("tags address:       0x%08x\n", v)
	}
	if v, ok := hdr.PageSize(); ok {
		fmt.Printf("page size:          %d\n", v)
	}
	if v, ok := hdr.BoardName(); ok {
		fmt.Printf("board name:         %q\n", v)
	}
	if v, ok := hdr.KernelCmdline(); ok {
		fmt.Printf("cmdline:            %q\n", v)
	}
	if v, ok := hdr.ID(); ok {
		fmt.Printf("id:                 %x\n", v)
	}
}

var entryFiles = map[bootimg.EntryType]string{
	bootimg.EntryKernel:     "kernel.img",
	bootimg.EntryRamdisk:    "ramdisk.img",
	bootimg.EntrySecondBoot: "second.img",
	bootimg.EntryDeviceTree: "dt.img",
}

func runUnpack(path, outdir string) error {
	r, f, err := openReader(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer r.Close()

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}

	hdr, err := r.ReadHeader()
	if err != nil {
		return err
	}
	if err := writeProps(filepath.Join(outdir, "bootimg.props"), hdr); err != nil {
		return err
	}

	buf := make([]byte, 64*1024)
	for {
		entry, err := r.ReadEntry()
		if err != nil {
			break
		}
		typ, _ := entry.Type()
		name, ok := entryFiles[typ]
		if !ok {
			name = typ.String() + ".img"
		}

		out, err := os.Create(filepath.Join(outdir, name))
		if err != nil {
			return err
		}
		for {
			n, err := r.ReadData(buf)
			if err != nil {
				out.Close()
				return err
			}
			if n == 0 {
				break
			}
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return err
			}
		}
		if err := out.Close(); err != nil {
			return err
		}
		logrus.WithField("file", name).Debug("payload extracted")
	}
	return nil
}

func runPack(dir, path string, bump bool) error {
	props, err := readProps(filepath.Join(dir, "bootimg.props"))
	if err != nil {
		return err
	}

	out, err := stream.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	w := bootimg.NewWriter()
	format := bootimg.FormatAndroid
	if bump {
		format = bootimg.FormatBump
	}
	if err := w.SetFormat(format); err != nil {
		return err
	}
	if err := w.Open(out); err != nil {
		return err
	}

	hdr, err := w.GetHeader()
	if err != nil {
		return err
	}
	if err := applyProps(hdr, props); err != nil {
		return err
	}
	if err := w.WriteHeader(hdr); err != nil {
		return err
	}

	for {
		entry, err := w.GetEntry()
		if err != nil {
			break
		}
		typ, _ := entry.Type()
		if err := w.WriteEntry(entry); err != nil {
			return err
		}

		data, err := os.ReadFile(filepath.Join(dir, entryFiles[typ]))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for len(data) > 0 {
			n, err := w.WriteData(data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}

	return w.Close()
}

func writeProps(path string, hdr *bootimg.Header) error {
	var sb strings.Builder
	if v, ok := hdr.KernelAddress(); ok {
		fmt.Fprintf(&sb, "kernel_address=0x%08x\n", v)
	}
	if v, ok := hdr.RamdiskAddress(); ok {
		fmt.Fprintf(&sb, "ramdisk_address=0x%08x\n", v)
	}
	if v, ok := hdr.SecondBootAddress(); ok {
		fmt.Fprintf(&sb, "secondboot_address=0x%08x\n", v)
	}
	if v, ok := hdr.KernelTagsAddress(); ok {
		fmt.Fprintf(&sb, "tags_address=0x%08x\n", v)
	}
	if v, ok := hdr.PageSize(); ok {
		fmt.Fprintf(&sb, "page_size=%d\n", v)
	}
	if v, ok := hdr.BoardName(); ok {
		fmt.Fprintf(&sb, "board_name=%s\n", v)
	}
	if v, ok := hdr.KernelCmdline(); ok {
		fmt.Fprintf(&sb, "cmdline=%s\n", v)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func readProps(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = value
	}
	return props, nil
}

func applyProps(hdr *bootimg.Header, props map[string]string) error {
	parseU32 := func(s string) (uint32, error) {
		v, err := strconv.ParseUint(s, 0, 32)
		return uint32(v), err
	}

	for key, value := range props {
		var err error
		switch key {
		case "kernel_address":
			var v uint32
			if v, err = parseU32(value); err == nil {
				err = hdr.SetKernelAddress(v)
			}
		case "ramdisk_address":
			var v uint32
			if v, err = parseU32(value); err == nil {
				err = hdr.SetRamdiskAddress(v)
			}
		case "secondboot_address":
			var v uint32
			if v, err = parseU32(value); err == nil {
				err = hdr.SetSecondBootAddress(v)
			}
		case "tags_address":
			var v uint32
			if v, err = parseU32(value); err == nil {
				err = hdr.SetKernelTagsAddress(v)
			}
		case "page_size":
			var v uint32
			if v, err = parseU32(value); err == nil {
				err = hdr.SetPageSize(v)
			}
		case "board_name":
			err = hdr.SetBoardName(value)
		case "cmdline":
			err = hdr.SetKernelCmdline(value)
		}
		if err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	return nil
}
