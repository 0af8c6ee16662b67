// Command fsck walks a FAT32 image's directory tree end-to-end and reports
// whether the volume's cached free-cluster count still matches a fresh
// linear scan (SPEC_FULL.md §D.4's "on-disk is truth" invariant for the FAT
// cache). It exercises internal/fat32 against a real host file the same way
// the teacher's own cmd/ tools exercise its core packages against a real
// disk image, not a synthetic fixture.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/Acteus/vibos/internal/bootcfg"
	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/fat32"
)

var boardFlag = flag.String("board", "", "bootcfg YAML descriptor naming the image to check (overrides the positional argument)")

func main() {
	flag.Usage = usage
	flag.Parse()

	path, err := imagePath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fsck:", err)
		os.Exit(1)
	}

	if err := run(path); err != nil {
		fmt.Fprintln(os.Stderr, "fsck:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: fsck [-board board.yaml] [image]\n")
	flag.PrintDefaults()
}

func imagePath() (string, error) {
	if *boardFlag != "" {
		b, err := bootcfg.Load(*boardFlag)
		if err != nil {
			return "", err
		}
		if b.BlockImage == "" {
			return "", fmt.Errorf("board %s names no block_image", *boardFlag)
		}
		return b.BlockImage, nil
	}
	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	return args[0], nil
}

func run(path string) error {
	dev, err := block.NewHostFile(path, true)
	if err != nil {
		return err
	}
	defer dev.Close()

	vol, err := fat32.Mount(dev)
	if err != nil {
		return fmt.Errorf("mount %s: %w", path, err)
	}

	cachedFree := vol.FreeClusters()

	bar := progressbar.Default(-1, "scanning "+path)
	defer bar.Close()

	var walk func(cluster uint32, prefix string) error
	walk = func(cluster uint32, prefix string) error {
		entries, err := vol.ListDir(cluster)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, e := range entries {
			name := e.FullName()
			if name == "." || name == ".." {
				continue
			}
			full := prefix + "/" + name
			bar.Add(1)
			if e.IsDir() {
				fmt.Printf("%s/\n", full)
				if err := walk(e.Cluster, full); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%s (%d bytes)\n", full, e.Size)
		}
		return nil
	}
	if err := walk(vol.RootCluster(), ""); err != nil {
		return err
	}

	freshFree, err := vol.Fsck()
	if err != nil {
		return fmt.Errorf("fsck scan: %w", err)
	}
	if freshFree != cachedFree {
		fmt.Printf("free-cluster mismatch: cached=%d actual=%d\n", cachedFree, freshFree)
		return fmt.Errorf("%s: free-cluster count out of sync", path)
	}
	fmt.Printf("ok: %d clusters free\n", freshFree)
	return nil
}
