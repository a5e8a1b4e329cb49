// Copyright (c) 2026 The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-wia.
//
// go-wia is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-wia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-wia.  If not, see <https://www.gnu.org/licenses/>.

// Command wiaconv converts raw GameCube and Wii disc images to and from the
// WIA and RVZ container formats.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/plumbing"
	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	wia "github.com/ZaparooProject/go-wia"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var fs = afero.NewOsFs()

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func parseCompression(name string) (wia.CompressionType, error) {
	switch strings.ToLower(name) {
	case "none":
		return wia.CompressionNone, nil
	case "purge":
		return wia.CompressionPurge, nil
	case "bzip2":
		return wia.CompressionBzip2, nil
	case "lzma":
		return wia.CompressionLZMA, nil
	case "lzma2":
		return wia.CompressionLZMA2, nil
	case "zstd":
		return wia.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func compress(src, dst string, rvz bool, compression string, level, chunkSize int, verbose bool) error {
	comp, err := parseCompression(compression)
	if err != nil {
		return err
	}
	if level == 0 {
		if low, high := wia.AllowedCompressionLevels(comp); low < high {
			level = 5
			if comp == wia.CompressionZstd {
				level = 3
			}
		}
	}

	ext := wia.WIAExtension
	if rvz {
		ext = wia.RVZExtension
	}
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ext
	}

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	var progress wia.ProgressFunc
	if verbose {
		pb := progressbar.DefaultBytes(fi.Size())
		progress = func(p wia.Progress) error {
			return pb.Set64(int64(p.BytesRead))
		}
	}

	return wia.Convert(in, uint64(fi.Size()), nil, out, wia.ConvertOptions{
		RVZ:              rvz,
		Compression:      comp,
		CompressionLevel: level,
		ChunkSize:        uint32(chunkSize),
		Progress:         progress,
	})
}

func decompress(src, dst string, verbose bool) error {
	r, err := wia.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".iso"
	}

	f, err := fs.Create(dst)
	if err != nil {
		return multierror.Append(err, r.Close())
	}

	var w io.WriteCloser = f
	if verbose {
		pb := progressbar.DefaultBytes(int64(r.DataSize()))
		w = plumbing.MultiWriteCloser(f, plumbing.NopWriteCloser(pb))
	}
	defer w.Close()

	_, err = io.Copy(w, io.NewSectionReader(r, 0, int64(r.DataSize())))
	return err
}

func info(src string) error {
	r, err := wia.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	format := "WIA"
	if r.RVZ() {
		format = "RVZ"
	}

	fmt.Printf("Format:       %s %s\n", format, wia.VersionString(r.Version()))
	fmt.Printf("Disc type:    %d\n", r.DiscType())
	fmt.Printf("Compression:  %s (level %d)\n", r.Compression(), r.CompressionLevel())
	fmt.Printf("Chunk size:   %#x\n", r.BlockSize())
	fmt.Printf("Image size:   %d\n", r.DataSize())
	fmt.Printf("File size:    %d\n", r.RawSize())
	fmt.Printf("Wii decrypt:  %v\n", r.SupportsReadWiiDecrypted())
	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "wiaconv"
	app.Usage = "WIA/RVZ disc image utility"
	app.Version = fmt.Sprintf("%s, commit %s, built at %s", version, commit, date)

	verboseFlag := &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "increase verbosity",
	}

	app.Commands = []*cli.Command{
		{
			Name:      "compress",
			Usage:     "Compress a raw disc image into a " + wia.WIAExtension + " or " + wia.RVZExtension + " file",
			ArgsUsage: "SOURCE [TARGET]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return compress(c.Args().Get(0), c.Args().Get(1), c.Bool("rvz"),
					c.String("compression"), c.Int("level"), c.Int("chunk-size"),
					c.Bool("verbose"))
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "rvz",
					Usage: "write RVZ instead of WIA",
				},
				&cli.StringFlag{
					Name:    "compression",
					Aliases: []string{"c"},
					Usage:   "compression type (none, purge, bzip2, lzma, lzma2, zstd)",
					Value:   "zstd",
				},
				&cli.IntFlag{
					Name:    "level",
					Aliases: []string{"l"},
					Usage:   "compression level",
				},
				&cli.IntFlag{
					Name:  "chunk-size",
					Usage: "chunk size in bytes",
				},
				verboseFlag,
			},
		},
		{
			Name:      "decompress",
			Usage:     "Decompress a " + wia.WIAExtension + " or " + wia.RVZExtension + " file back to a raw image",
			ArgsUsage: "SOURCE [TARGET]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return decompress(c.Args().Get(0), c.Args().Get(1), c.Bool("verbose"))
			},
			Flags: []cli.Flag{verboseFlag},
		},
		{
			Name:      "info",
			Usage:     "Print container metadata",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}

				return info(c.Args().Get(0))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
