package coupling_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/coupling"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/viv"
	"github.com/san-kum/vivsim/internal/viv/vivtest"
)

type recorder struct{ steps []viv.Record }

func (r *recorder) OnStep(rec viv.Record) { r.steps = append(r.steps, rec) }

var _ = Describe("Loop", func() {
	var (
		cfg    *config.Config
		solver *vivtest.Solver
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		cfg.Run.Duration = 0.0205
		solver = vivtest.New(viv.StructuralResponse{VelY: 0.001, AcelY: 0.05, DispY: 1e-4})
	})

	run := func(opts ...coupling.Option) (*coupling.Result, error) {
		c, err := riser.Derive(cfg)
		Expect(err).NotTo(HaveOccurred())
		return coupling.New(solver, c, opts...).Run(context.Background())
	}

	Context("when every solve succeeds", func() {
		It("commits one record per planned step", func() {
			rec := &recorder{}
			res, err := run(coupling.WithObserver(rec))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Steps).To(Equal(20))
			Expect(res.History.Len()).To(Equal(20))
			Expect(rec.steps).To(HaveLen(20))
			Expect(solver.Solves()).To(Equal(20))
		})

		It("advances the clock by dt per step", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			for i, t := range res.History.Time {
				Expect(t).To(BeNumerically("~", float64(i+1)*0.001, 1e-12))
			}
		})

		It("normalises displacements by the outer diameter", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.History.DispY[5]).To(BeNumerically("~", 1e-2, 1e-12))
			Expect(res.History.DispX[5]).To(BeZero())
		})

		It("reads the monitored node", func() {
			_, err := run(coupling.WithMonitoredNode(7))
			Expect(err).NotTo(HaveOccurred())
			for _, c := range solver.Calls() {
				if c.Method == "NodalValue" {
					Expect(c.Args[0]).To(BeEquivalentTo(7))
				}
			}
		})
	})

	Context("when the solver diverges mid-run", func() {
		BeforeEach(func() {
			solver.FailSolveAt = 11
		})

		It("returns the committed prefix and finalizes", func() {
			res, err := run()

			Expect(err).To(MatchError(viv.ErrSolverConvergence))
			Expect(res).NotTo(BeNil())
			Expect(res.Aborted).To(BeTrue())
			Expect(res.History.Committed().Time).To(HaveLen(10))
			Expect(solver.Finalized()).To(Equal(1))
		})

		It("reports the failing step", func() {
			_, err := run()

			var se *viv.StepError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Step).To(Equal(11))
			Expect(se.Time).To(BeNumerically("~", 0.011, 1e-12))
		})
	})

	Context("when the model cannot be built", func() {
		It("never starts stepping", func() {
			solver.Fail["DefinePipeSection"] = errors.New("bad section")

			res, err := run()
			Expect(err).To(MatchError(viv.ErrSetup))
			Expect(res).To(BeNil())
			Expect(solver.Count("SetTimeStep")).To(BeZero())
			Expect(solver.Finalized()).To(Equal(1))
		})
	})
})
