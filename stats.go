package toothconv

// Tooth distribution statistics over written label files.

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ToothCounts counts teeth in the label files of one directory.
type ToothCounts struct {
	Files     int
	Images    map[string]int // Number of label files containing the tooth.
	Instances map[string]int // Number of lines of the tooth.
}

// Total returns the total number of instances.
func (c ToothCounts) Total() int {
	var n int
	for _, v := range c.Instances {
		n += v
	}
	return n
}

// CountTeeth counts the teeth of the *.txt label files in dir.
//
// If raw is set, dir holds raw labels and every class token is an FDI code. Otherwise lines with
// integer geometry are taken as raw lines and are used when a file has any; else its YOLO lines
// are used. If yoloIndices is set, YOLO class tokens are dense class indices and are translated
// back to FDI codes.
func CountTeeth(dir string, raw, yoloIndices bool) (ToothCounts, error) {
	counts := ToothCounts{Images: make(map[string]int), Instances: make(map[string]int)}

	files, err := filesByExtInDir(dir, ".txt")
	if err != nil {
		return counts, err
	}

	for _, path := range files {
		lines, err := readLines(path)
		if err != nil {
			return counts, err
		}

		var fdi, yolo []string
		for _, l := range lines {
			ll, err := ParseLabelLine(l)
			if err != nil {
				continue
			}
			if raw || ll.Raw {
				fdi = append(fdi, ll.Class)
			} else {
				yolo = append(yolo, yoloTooth(ll.Class, yoloIndices))
			}
		}
		teeth := fdi
		if len(teeth) == 0 {
			teeth = yolo
		}

		counts.Files++
		seen := make(map[string]bool, len(teeth))
		for _, t := range teeth {
			counts.Instances[t]++
			if !seen[t] {
				seen[t] = true
				counts.Images[t]++
			}
		}
	}

	return counts, nil
}

// yoloTooth returns the tooth name of a YOLO class token.
func yoloTooth(class string, indices bool) string {
	if !indices {
		return class
	}
	idx, err := strconv.Atoi(class)
	if err != nil {
		return class
	}
	code, err := IndexToFDI(idx)
	if err != nil {
		return class
	}
	return strconv.Itoa(code)
}

// Distribution holds the tooth counts of each analysed split.
type Distribution struct {
	Splits []string // Splits with a label directory, in analysis order.
	Counts map[string]ToothCounts
}

// AnalyzeDistribution counts the teeth in root/<split>/<labelDirName> for each split. The raw/
// sub-directory is used when labels were written in both formats. raw declares that the label
// directories hold raw labels, i.e. were written in raw mode.
func AnalyzeDistribution(root, labelDirName string, splits []string, raw, yoloIndices bool) (
	Distribution, error) {

	if len(splits) == 0 {
		splits = DefaultSplits
	}
	d := Distribution{Counts: make(map[string]ToothCounts, len(splits))}
	for _, s := range splits {
		dir := filepath.Join(root, s, labelDirName)
		if !isDir(dir) {
			continue
		}
		rawDir := raw
		if sub := filepath.Join(dir, rawFormat.String()); isDir(sub) {
			dir, rawDir = sub, true
		}

		c, err := CountTeeth(dir, rawDir, yoloIndices)
		if err != nil {
			return d, err
		}
		d.Splits = append(d.Splits, s)
		d.Counts[s] = c
	}
	return d, nil
}

// Teeth returns all teeth found in any split, numeric codes first in numeric order, then other
// names in lexical order.
func (d Distribution) Teeth() []string {
	set := make(map[string]bool)
	for _, c := range d.Counts {
		for t := range c.Images {
			set[t] = true
		}
	}
	teeth := make([]string, 0, len(set))
	for t := range set {
		teeth = append(teeth, t)
	}
	sortTeeth(teeth)
	return teeth
}

func sortTeeth(teeth []string) {
	sort.Slice(teeth, func(i, j int) bool {
		a, errA := strconv.Atoi(teeth[i])
		b, errB := strconv.Atoi(teeth[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return teeth[i] < teeth[j]
	})
}

// WriteReport writes a table per split (images and instances per tooth) followed by a summary of
// images per tooth across all splits.
func (d Distribution) WriteReport(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	for _, s := range d.Splits {
		c := d.Counts[s]
		teeth := make([]string, 0, len(c.Images))
		for t := range c.Images {
			teeth = append(teeth, t)
		}
		sortTeeth(teeth)

		fmt.Fprintf(tw, "%s - images per tooth number\n", s)
		fmt.Fprintln(tw, "Tooth (FDI)\tImage count\tTotal instances\t")
		for _, t := range teeth {
			fmt.Fprintf(tw, "%s\t%d\t%d\t\n", t, c.Images[t], c.Instances[t])
		}
		fmt.Fprintf(tw, "Unique teeth: %d, images: %d, instances: %d\n\n", len(teeth), c.Files,
			c.Total())
	}

	fmt.Fprintln(tw, "Summary - images per tooth across all splits")
	fmt.Fprintf(tw, "Tooth (FDI)\t%s\tTotal\t\n", strings.Join(d.Splits, "\t"))
	totals := make([]int, len(d.Splits))
	for _, t := range d.Teeth() {
		var sum int
		cols := make([]string, len(d.Splits))
		for i, s := range d.Splits {
			n := d.Counts[s].Images[t]
			cols[i] = strconv.Itoa(n)
			totals[i] += n
			sum += n
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", t, strings.Join(cols, "\t"), sum)
	}
	var grand int
	cols := make([]string, len(totals))
	for i, n := range totals {
		cols[i] = strconv.Itoa(n)
		grand += n
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%d\t\n", strings.Join(cols, "\t"), grand)

	return tw.Flush()
}
