/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

// Command classdump is a sample driver over the classfile codec: it reads
// a .class file, decodes it into a tree.ClassNode, prints a summary, and
// optionally re-encodes the node to a fresh file to demonstrate that the
// reader/tree/writer chain is transparent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/go-classfile/asm/classfile"
	"github.com/go-classfile/asm/opcodes"
	"github.com/go-classfile/asm/trace"
	"github.com/go-classfile/asm/tree"
)

var (
	verbose     bool
	dumpFrames  bool
	dumpFields  bool
	dumpMethods bool
	outPath     string
)

// mapFile memory-maps name read-only, the way saferwall-pe's File.New does
// for its input binary, and returns its bytes plus a closer.
func mapFile(name string) ([]byte, func(), error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	closer := func() {
		data.Unmap()
		f.Close()
	}
	return data, closer, nil
}

func accessString(access int) string {
	flags := []struct {
		bit  int
		name string
	}{
		{opcodes.AccPublic, "public"},
		{opcodes.AccPrivate, "private"},
		{opcodes.AccProtected, "protected"},
		{opcodes.AccStatic, "static"},
		{opcodes.AccFinal, "final"},
		{opcodes.AccAbstract, "abstract"},
		{opcodes.AccInterface, "interface"},
	}
	s := ""
	for _, f := range flags {
		if access&f.bit != 0 {
			if s != "" {
				s += " "
			}
			s += f.name
		}
	}
	return s
}

func dumpClass(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, closer, err := mapFile(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer closer()

	cr, err := classfile.NewClassReader(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	cn := tree.NewClassNode()
	if err := cr.Accept(cn); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	fmt.Printf("%s extends %s (%s), class file version %d.%d\n",
		cn.Name, cn.SuperName, accessString(cn.Access), cn.MajorVersion, cn.MinorVersion)

	if dumpFields {
		for _, fl := range cn.Fields {
			fmt.Printf("  field %-20s %s %s\n", fl.Name, fl.Descriptor, accessString(fl.Access))
		}
	}

	if dumpMethods || dumpFrames {
		for _, m := range cn.Methods {
			fmt.Printf("  method %-20s %s %s\n", m.Name, m.Descriptor, accessString(m.Access))
			if dumpFrames && m.HasCode {
				frames := countFrames(m)
				fmt.Printf("    stack map frames: %d, max_stack=%d, max_locals=%d\n", frames, m.MaxStack, m.MaxLocals)
			}
		}
	}

	if outPath != "" {
		cw := classfile.NewClassWriter(classfile.ComputeNothing)
		cn.Accept(cw)
		out, err := cw.ToByteArray()
		if err != nil {
			return fmt.Errorf("re-encoding %s: %w", path, err)
		}
		if err := os.WriteFile(outPath, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("wrote %d bytes to %s\n", len(out), outPath)
	}

	return nil
}

// countFrames walks a decoded method's buffered instruction stream
// looking for VisitFrame callbacks, the only way to learn the frame count
// back from a tree.MethodNode without exposing its internals.
func countFrames(m *tree.MethodNode) int {
	counter := &frameCounter{}
	m.Accept(counter)
	return counter.frames
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "classdump",
		Short: "Dump and re-encode Java .class files",
		Long:  "classdump decodes a .class file through the classfile codec and prints its structure",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("classdump 0.1.0")
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <file.class>",
		Short: "Dump a class file's structure",
		Args:  cobra.ExactArgs(1),
		RunE:  dumpClass,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable trace logging")
	dumpCmd.Flags().BoolVar(&dumpFrames, "dump-frames", false, "print StackMapTable frame counts")
	dumpCmd.Flags().BoolVar(&dumpFields, "dump-fields", false, "print field declarations")
	dumpCmd.Flags().BoolVar(&dumpMethods, "dump-methods", true, "print method declarations")
	dumpCmd.Flags().StringVar(&outPath, "out", "", "re-encode the class and write it to this path")

	rootCmd.AddCommand(versionCmd, dumpCmd)
	cobra.OnInitialize(func() {
		trace.Verbose = verbose
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
