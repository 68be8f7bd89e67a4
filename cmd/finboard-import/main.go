package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"finboard/internal/cli"
	"finboard/internal/core"
	"finboard/internal/importer"
	"finboard/internal/log"
	"finboard/internal/services"
)

func main() {
	source := flag.String("source", "generic", "import source name (see -list)")
	file := flag.String("file", "-", "CSV file to import, - for stdin")
	months := flag.Int("months", services.DashboardMonths, "months of rollup to print after the import")
	list := flag.Bool("list", false, "list the available import sources and exit")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentImporter)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize application", err)
	}
	defer app.Close()

	if *list {
		for _, name := range app.Service.Sources() {
			fmt.Println(name)
		}
		return
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			cli.Fatal(logger, "Failed to open import file", err)
		}
		defer f.Close()
		in = f
	}

	res, err := app.Service.Import(ctx, in, *source)
	if err != nil {
		_ = app.Close()
		cli.Fatal(logger, "Import failed", err)
	}
	printResult(os.Stdout, res)

	aggs, err := app.Service.MonthlySeries(ctx, *months)
	if err != nil {
		_ = app.Close()
		cli.Fatal(logger, "Failed to compute monthly rollup", err)
	}
	printMonths(os.Stdout, aggs)
}

func printResult(w io.Writer, res importer.Result) {
	fmt.Fprintf(w, "source %s: %d rows, %d imported, %d skipped, %d rejected\n",
		res.Source, res.Rows, res.Imported, res.Skipped, res.Rejected())
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  row %d: %s\n", e.Row, e.Reason())
	}
	fmt.Fprintln(w)
}

func printMonths(w io.Writer, aggs []core.MonthlyAggregate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "month\tincome\texpenses\tnet\t")
	for _, m := range aggs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", m.MonthKey,
			core.FormatAmount(m.TotalIncome),
			core.FormatAmount(m.TotalExpenses),
			core.FormatAmount(m.NetAmount))
	}
	_ = tw.Flush()
}
