package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
)

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	DepthPolicy string
	MinScore    float64
}

// PoseInput is the JSON document classify reads, and one line of a
// play --poses file. Grounding is keyed by side ("L", "R").
type PoseInput struct {
	Joints      biomech.Joints    `json:"joints"`
	Previous    biomech.Joints    `json:"previous,omitempty"`
	FaceVisible bool              `json:"faceVisible"`
	Grounding   map[string]string `json:"grounding,omitempty"`
}

// ClassifyResult is the classifier output for one pose.
type ClassifyResult struct {
	Orientations map[string]biomech.Orientation `json:"orientations"`
	Depth        map[string]float64             `json:"depth"`
}

// Text lists one joint per line, sorted by id.
func (r ClassifyResult) Text() string {
	ids := make([]string, 0, len(r.Orientations))
	for id := range r.Orientations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%s\t%s", id, r.Orientations[id])
		if d, ok := r.Depth[id]; ok {
			fmt.Fprintf(&b, "\tdz=%+.3f", d)
		}
		b.WriteByte('\n')
	}
	if len(ids) == 0 {
		b.WriteString("no classifiable joints\n")
	}
	return b.String()
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify <pose.json|->",
		Short: "Classify joint orientations of a pose",
		Long: `Classify the joint orientations of one pose.

The pose document is {"joints": {"LS": {"vector": [x,y,z], "score": 0.9}, ...},
"previous": {...}, "faceVisible": true}. Elbows, knees and hips are labelled
FLEX, EXT or NEU and shoulders IN, OUT or NEU. When "previous" is present the
depth displacement of every joint visible in both frames is reported.

Exit codes:
  0 - Pose classified
  2 - Command error (unreadable file, malformed JSON, bad flags)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DepthPolicy, "depth-policy", "", "depth correction policy (facing|raw), overrides config")
	cmd.Flags().Float64Var(&opts.MinScore, "min-score", 0, "visibility threshold, overrides config")

	return cmd
}

func runClassify(opts *ClassifyOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, _, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	classifier, err := cfg.NewClassifier()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid classifier config", err, nil)
	}
	if opts.DepthPolicy != "" {
		if classifier.Depth, err = biomech.DepthPolicyByName(opts.DepthPolicy); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --depth-policy", err, nil)
		}
	}
	if cmd.Flags().Changed("min-score") {
		classifier.MinScore = opts.MinScore
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to read pose", err, nil)
	}
	var pose PoseInput
	if err := json.Unmarshal(data, &pose); err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to parse pose", err, nil)
	}

	f.VerboseLog("Classifying %d joint(s), depth policy %s", len(pose.Joints), classifier.Depth.Name())
	a := classifier.Classify(biomech.Frame{
		Joints:      pose.Joints,
		Previous:    pose.Previous,
		FaceVisible: pose.FaceVisible,
	})
	return f.Success(ClassifyResult{Orientations: a.Orientations, Depth: a.Depth})
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
