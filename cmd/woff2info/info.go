package main

import (
	"fmt"
	"math"
	"os"

	"github.com/tdewolff/parse/v2"
	"github.com/wofftools/woff2dec"
)

type Info struct {
	Names  bool   `short:"n" desc:"Print decoded name table strings"`
	Output string `short:"o" desc:"Output filename"`
	Input  string `index:"0" desc:"Input file"`
}

func (cmd *Info) Run() error {
	b, err := os.ReadFile(cmd.Input)
	if err != nil {
		return err
	}
	if len(b) >= 4 && string(b[:4]) == "wOF2" {
		if b, err = woff2.ParseWOFF2(b); err != nil {
			return err
		}
	}

	r := parse.NewBinaryReaderBytes(b)
	tag := r.ReadString(4)
	if tag == "ttcf" {
		_ = r.ReadUint32() // TTC version
		_ = r.ReadUint32() // numFonts
		firstFontOffset := r.ReadUint32()
		r = parse.NewBinaryReaderBytes(b)
		_ = r.ReadBytes(int64(firstFontOffset))
	}
	sfntVersion := r.ReadString(4)
	numTables := int(r.ReadUint16())
	_ = r.ReadBytes(6) // searchRange, entrySelector, rangeShift

	version := "TrueType"
	if sfntVersion == "OTTO" {
		version = "CFF"
	}
	fmt.Printf("File: %s\n\n", cmd.Input)
	fmt.Printf("sfntVersion: %s (%s)\n", sfntVersion, version)
	fmt.Printf("\nTable directory:\n")

	nLen := int(math.Log10(float64(len(b))) + 1)
	var nameTable []byte
	for i := 0; i < numTables; i++ {
		tag := r.ReadString(4)
		checksum := r.ReadUint32()
		offset := r.ReadUint32()
		length := r.ReadUint32()
		fmt.Printf("  %2d  %s  checksum=0x%08X  offset=%*d  length=%*d\n", i, tag, checksum, nLen, offset, nLen, length)
		if tag == "name" && offset+length <= uint32(len(b)) {
			nameTable = b[offset : offset+length]
		}
	}

	if cmd.Names && nameTable != nil {
		records, err := woff2.ReadNameTable(nameTable)
		if err != nil {
			return err
		}
		fmt.Printf("\nName table:\n")
		for _, rec := range records {
			fmt.Printf("  platform=%d encoding=%d language=%d nameID=%-2d  %s\n", rec.PlatformID, rec.EncodingID, rec.LanguageID, rec.NameID, rec.Value)
		}
	}
	return nil
}
