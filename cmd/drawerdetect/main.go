// Command drawerdetect compares a drawer photo against its empty reference
// and reports which regions are occupied.
//
//	drawerdetect --ref ref_vazia_gaveta1.jpg --rois rois_gaveta1.json \
//	    --image sessao7_gaveta1.jpg --save sessao7_gaveta1_saida.jpg
//
// Progress goes to stdout as "[LOG] ..." lines; the last stdout line is the
// JSON report. Exit status is 1 on any error.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/vision"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("drawerdetect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts vision.FileOptions
	fs.StringVar(&opts.Reference, "ref", "", "empty drawer reference image (required)")
	fs.StringVar(&opts.Regions, "rois", "", "region file (required)")
	fs.StringVar(&opts.Image, "image", "", "current drawer image (required)")
	fs.StringVar(&opts.Save, "save", "", "annotated output image (default <image>_saida.jpg)")
	fs.StringVar(&opts.User, "usuario", "", "user recorded in the report")
	fs.StringVar(&opts.DrawerID, "gaveta-id", "", "drawer recorded in the report")
	fs.StringVar(&opts.Expected, "esperada", "", "region expected to be occupied")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if opts.Reference == "" || opts.Regions == "" || opts.Image == "" {
		fmt.Fprintln(stderr, "--ref, --rois and --image are required")
		fs.Usage()
		return 1
	}
	if opts.Save == "" {
		opts.Save = defaultSavePath(opts.Image)
	}

	logf := func(format string, a ...any) {
		fmt.Fprintf(stdout, "[LOG] "+format+"\n", a...)
	}

	rep, err := vision.NewDetector().RunFiles(opts, logf)
	if err != nil {
		fmt.Fprintf(stderr, "[ERRO] %v\n", err)
		return 1
	}

	b, err := json.Marshal(rep)
	if err != nil {
		fmt.Fprintf(stderr, "[ERRO] %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(b))
	return 0
}

func defaultSavePath(image string) string {
	return strings.TrimSuffix(image, filepath.Ext(image)) + "_saida.jpg"
}
