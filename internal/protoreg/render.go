package protoreg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render writes every service file of r below outDir.
func Render(r *Registry, outDir string) error {
	pp := protoprint.Printer{}
	for _, fd := range r.Files() {
		fp := filepath.Join(outDir, filepath.FromSlash(fd.Path()))
		if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
			return err
		}
		f, err := os.Create(fp)
		if err != nil {
			return err
		}
		err = pp.PrintProtoFile(fd, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", fd.Path(), err)
		}
	}
	return nil
}

// Print writes every service file of r to w, each preceded by a comment naming its path.
func Print(r *Registry, w io.Writer) error {
	pp := protoprint.Printer{}
	for i, fd := range r.Files() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "// %s\n", fd.Path())
		if err := pp.PrintProtoFile(fd, w); err != nil {
			return fmt.Errorf("%s: %w", fd.Path(), err)
		}
	}
	return nil
}
