package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
)

// SafeZoneOptions holds flags for the safezone command.
type SafeZoneOptions struct {
	*RootOptions
	Hip    float64
	Foot   float64
	Strict bool
	Clamp  float64
}

// SafeZoneResult describes a knee safe zone.
type SafeZoneResult struct {
	Hip      float64      `json:"hip"`
	Foot     float64      `json:"foot"`
	Min      float64      `json:"min"`
	Max      float64      `json:"max"`
	Fallback bool         `json:"fallback"`
	Polygon  [][2]float64 `json:"polygon"`
	Clamped  *float64     `json:"clamped,omitempty"`
}

// Text renders the window and polygon.
func (r SafeZoneResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hip %.1f foot %.1f window [%.1f, %.1f]", r.Hip, r.Foot, r.Min, r.Max)
	if r.Fallback {
		b.WriteString(" (fallback: windows do not overlap)")
	}
	b.WriteByte('\n')
	if r.Clamped != nil {
		fmt.Fprintf(&b, "clamped %.1f\n", *r.Clamped)
	}
	for _, p := range r.Polygon {
		fmt.Fprintf(&b, "%.4f\t%.4f\n", p[0], p[1])
	}
	return b.String()
}

// NewSafeZoneCommand creates the safezone command.
func NewSafeZoneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SafeZoneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "safezone",
		Short: "Compute the knee safe zone for a hip and foot rotation",
		Long: `Compute the permissible knee direction for a hip/foot rotation pair.

The knee may point within 25 degrees of the hip and within 40 degrees of the
foot. When the two windows do not overlap the zone collapses onto the hip
direction; with --strict that case is reported as a failure.

Exit codes:
  0 - Zone computed
  1 - Windows do not overlap (--strict only)

Examples:
  seqsync safezone --hip 0 --foot 10
  seqsync safezone --hip 170 --foot -170 --clamp 120`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSafeZone(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Hip, "hip", 0, "hip rotation in degrees")
	cmd.Flags().Float64Var(&opts.Foot, "foot", 0, "foot rotation in degrees")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the windows do not overlap")
	cmd.Flags().Float64Var(&opts.Clamp, "clamp", 0, "clamp a knee angle into the zone")

	return cmd
}

func runSafeZone(opts *SafeZoneOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var z biomech.SafeZone
	if opts.Strict {
		var err error
		if z, err = biomech.StrictKneeSafeZone(opts.Hip, opts.Foot); err != nil {
			return f.Fail(ExitFailure, ErrCodeInvalidInput, "no safe zone", err, nil)
		}
	} else {
		z = biomech.KneeSafeZone(opts.Hip, opts.Foot)
	}

	res := SafeZoneResult{
		Hip:      z.Hip,
		Foot:     z.Foot,
		Min:      z.Min,
		Max:      z.Max,
		Fallback: z.Fallback,
		Polygon:  make([][2]float64, len(z.Polygon)),
	}
	for i, p := range z.Polygon {
		res.Polygon[i] = [2]float64{p.X, p.Y}
	}
	if cmd.Flags().Changed("clamp") {
		c := z.ClampAngle(opts.Clamp)
		res.Clamped = &c
	}
	return f.Success(res)
}
