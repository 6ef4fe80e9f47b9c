package econex_test

import (
	"context"
	"encoding/json"
	"math"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/fieldlab/internal/dynamo"
	"github.com/san-kum/fieldlab/internal/econex"
	"github.com/san-kum/fieldlab/internal/lpmodel"
	"github.com/san-kum/fieldlab/internal/storage"
)

var _ = Describe("Data", func() {
	var d *econex.Data

	BeforeEach(func() {
		d = econex.DefaultData()
	})

	It("uses the default topology", func() {
		Expect(d.T).To(Equal(24))
		Expect(d.Nodes).To(Equal([]int{1, 2, 3}))
		Expect(d.Arcs).To(HaveLen(6))
		Expect(d.Hub).To(Equal(3))
		Expect(d.StorageCap(2, econex.Potable)).To(Equal(5.0))
		Expect(d.ArcCap(econex.Arc{From: 1, To: 2}, econex.Energy)).To(Equal(10.0))
		Expect(d.TreatmentCap).To(Equal(5.0))
	})

	It("generates the solar bell curve", func() {
		solar := econex.SolarProfile(24, 12, 5)
		Expect(solar[5]).To(BeZero())
		Expect(solar[6]).To(Equal(0.677))
		Expect(solar[12]).To(Equal(5.0))
		Expect(solar[19]).To(BeZero())
	})

	It("prices the evening peak", func() {
		Expect(d.Prices[15]).To(Equal(0.08))
		Expect(d.Prices[16]).To(Equal(0.25))
		Expect(d.Prices[20]).To(Equal(0.25))
		Expect(d.Prices[21]).To(Equal(0.08))
	})

	It("combines demand and supply", func() {
		Expect(d.Demand.At(1, econex.Energy, 8)).To(Equal(-1.6))
		Expect(d.Demand.At(3, econex.Potable, 1)).To(Equal(-0.05))
		Expect(d.Demand.At(2, econex.Potable, 7)).To(Equal(-3.0))
		Expect(d.Demand.At(2, econex.Waste, 7)).To(BeZero())
		Expect(d.Supply.At(2, econex.Waste, 4)).To(Equal(2.0))
		Expect(d.Supply.At(2, econex.Waste, 8)).To(BeZero())
		Expect(d.NetDemand.At(1, econex.Energy, 13)).To(BeNumerically("~", 5-0.8, 1e-12))
		Expect(d.NetDemand.At(1, econex.Energy, 99)).To(BeZero())
	})

	It("rejects a hub outside the nodes", func() {
		_, err := econex.NewData(econex.Config{Hub: 7})
		Expect(err).To(MatchError(dynamo.ErrParameterBounds))
	})
})

var _ = Describe("Model", func() {
	var d *econex.Data

	BeforeEach(func() {
		var err error
		d, err = econex.NewData(econex.Config{T: 6})
		Expect(err).NotTo(HaveOccurred())
	})

	It("declares every variable family", func() {
		m, idx, err := econex.Build(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.NumVars()).To(Equal(6*3*6 + 3*3*6 + 3*6 + 5*6))
		Expect(m.NumConstraints()).To(Equal(3*3*6 + 6 + 3*6))
		Expect(idx.Import).To(HaveLen(6))
		Expect(m.Var(idx.TreatIn[0]).Upper).To(Equal(5.0))
	})

	It("solves to a consistent optimum", func() {
		sol, err := econex.Solve(context.Background(), d)
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.Status).To(Equal(lpmodel.Optimal))
		Expect(sol.Objective).To(BeNumerically(">", 0))
		Expect(sol.Grid).To(HaveLen(6))
		Expect(sol.Storage).To(HaveLen(3 * 3 * 6))

		for _, tr := range sol.Treatment {
			Expect(tr.PotableOut).To(BeNumerically("~", 0.95*tr.WasteIn, 1e-3))
			Expect(tr.WasteIn).To(BeNumerically("<=", 5+1e-6))
		}
		for _, st := range sol.Storage {
			Expect(st.Value).To(BeNumerically("<=", d.StorageCap(st.Node, st.Layer)+1e-6))
		}
		for _, f := range sol.Flows {
			Expect(f.Value).To(BeNumerically(">", 0))
			Expect(f.From).NotTo(Equal(f.To))
		}

		// No solar before 06:00, so node 1 energy has to be imported.
		Expect(sol.Totals().Import).To(BeNumerically(">", 0))
	})

	It("stops on a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := econex.Solve(ctx, d)
		Expect(err).To(MatchError(dynamo.ErrContextCanceled))
	})

	It("saves the result tables", func() {
		sol, err := econex.Solve(context.Background(), d)
		Expect(err).NotTo(HaveOccurred())

		store := storage.New(GinkgoT().TempDir(), nil)
		run, err := store.CreateRun("run_20240101_000000")
		Expect(err).NotTo(HaveOccurred())
		Expect(econex.Save(run, sol, store.Now())).To(Succeed())

		for _, name := range []string{"flows.csv", "storage.csv", "grid.csv", "treatment.csv", "summary.json", "solver.json"} {
			Expect(run.Path(name)).To(BeAnExistingFile())
		}

		raw, err := os.ReadFile(run.Path("summary.json"))
		Expect(err).NotTo(HaveOccurred())
		var summary map[string]any
		Expect(json.Unmarshal(raw, &summary)).To(Succeed())
		Expect(summary["run_id"]).To(Equal("run_20240101_000000"))
		Expect(summary["num_storage_entries"]).To(BeNumerically("==", 54))
		Expect(math.Abs(summary["objective_value"].(float64) - sol.Objective)).To(BeNumerically("<", 1e-9))
	})
})
