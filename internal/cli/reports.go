package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
	"fno-ledger/internal/pnl"
	"fno-ledger/internal/store"
)

func newStrategiesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List classified strategies of a saved run",
		Example: `  fno-ledger strategies --date 2024-04-18
  fno-ledger strategies --from 2024-04-01 --to 2024-04-30 --type "Iron Condor"
  fno-ledger strategies --underlying BANKNIFTY --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			st, filter, err := app.strategyFilter(ctx, cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			records, err := st.GetStrategies(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}

			if len(records) == 0 {
				output.Dim("No strategies")
				return nil
			}
			table := NewTable(output, "Date", "ID", "Type", "Underlying", "Expiry", "Legs")
			for _, r := range records {
				table.AddRow(
					FormatDate(r.Date),
					r.ID,
					string(r.Type),
					r.Underlying,
					r.ExpiryLabel(),
					FormatLegs(r.Legs),
				)
			}
			table.Render()
			output.Println()
			output.Dim("%d strategies", len(records))
			return nil
		},
	}
	addStrategyFlags(cmd)
	return cmd
}

func newPnLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Realized pnl booked per strategy",
		Long: `Show the pnl each strategy booked on its day, or with --by-date the
realized pnl of every closing fill and expiry summed per day.`,
		Example: `  fno-ledger pnl --from 2024-04-01 --to 2024-04-30
  fno-ledger pnl --type "Bull Call Spread"
  fno-ledger pnl --by-date`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			st, filter, err := app.strategyFilter(ctx, cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			byDate, _ := cmd.Flags().GetBool("by-date")
			if byDate {
				return dailyPnL(ctx, output, st, filter)
			}

			rows, err := st.GetStrategyPnL(ctx, filter)
			if err != nil {
				return err
			}
			total := decimal.Zero
			for _, r := range rows {
				total = total.Add(r.PnLBooked)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run_id":     filter.RunID,
					"strategies": rows,
					"total":      total,
				})
			}

			if len(rows) == 0 {
				output.Dim("No strategy pnl")
				return nil
			}
			table := NewTable(output, "Date", "Strategy", "Type", "Underlying", "Legs", "PnL Booked")
			for _, r := range rows {
				table.AddRow(
					FormatDate(r.Date),
					r.StrategyID,
					string(r.Type),
					r.Underlying,
					FormatLegs(r.Legs),
					output.FormatPnL(r.PnLBooked),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Total: %s\n", output.FormatPnL(total))
			return nil
		},
	}
	addStrategyFlags(cmd)
	cmd.Flags().Bool("by-date", false, "sum realized pnl per day instead")
	return cmd
}

type dailyTotal struct {
	Date     string          `json:"date"`
	Realized decimal.Decimal `json:"realized"`
}

// dailyPnL prints realized pnl per day within the filter's date range.
func dailyPnL(ctx context.Context, output *Output, st store.RunStore, filter store.StrategyFilter) error {
	records, err := st.GetPnLRecords(ctx, filter.RunID)
	if err != nil {
		return err
	}
	var kept []models.PnLRecord
	for _, r := range records {
		if !filter.StartDate.IsZero() && r.Date.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && r.Date.After(filter.EndDate) {
			continue
		}
		if filter.Underlying != "" && !strings.EqualFold(r.Key.Underlying, filter.Underlying) {
			continue
		}
		kept = append(kept, r)
	}

	sums := pnl.ByDate(kept)
	days := make([]time.Time, 0, len(sums))
	for d := range sums {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	totals := make([]dailyTotal, len(days))
	total := decimal.Zero
	for i, d := range days {
		totals[i] = dailyTotal{Date: models.FormatDate(d), Realized: sums[d]}
		total = total.Add(sums[d])
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"run_id": filter.RunID,
			"days":   totals,
			"total":  total,
		})
	}

	if len(days) == 0 {
		output.Dim("No realized pnl")
		return nil
	}
	table := NewTable(output, "Date", "Realized")
	for i, d := range days {
		table.AddRow(FormatDate(d), output.FormatPnL(totals[i].Realized))
	}
	table.Render()
	output.Println()
	output.Printf("Total: %s (%s)\n", output.FormatPnL(total), FormatCompact(total))
	return nil
}

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			limit, _ := cmd.Flags().GetInt("limit")
			st, err := app.Store()
			if err != nil {
				return err
			}
			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}

			if len(runs) == 0 {
				output.Dim("No saved runs")
				return nil
			}
			table := NewTable(output, "ID", "Created", "Source", "Horizon", "Trades", "Strategies", "Realized")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.CreatedAt.Local().Format("02-Jan-2006 15:04"),
					TruncateString(r.Source, 32),
					FormatDate(r.StartDate)+" .. "+FormatDate(r.EndDate),
					fmt.Sprintf("%d/%d", r.Accepted, r.Rows),
					fmt.Sprintf("%d", r.Strategies),
					output.FormatPnL(r.TotalRealized),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum runs to list")
	return cmd
}

func addStrategyFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "saved run id (default: latest)")
	cmd.Flags().String("date", "", "single day (YYYY-MM-DD)")
	cmd.Flags().String("from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().String("type", "", "strategy type, e.g. \"Iron Condor\" or IronCondor")
	cmd.Flags().String("underlying", "", "underlying, e.g. NIFTY")
}

// strategyFilter opens the store and builds the filter from the strategy flags.
func (a *App) strategyFilter(ctx context.Context, cmd *cobra.Command) (store.RunStore, store.StrategyFilter, error) {
	var filter store.StrategyFilter

	runID, _ := cmd.Flags().GetString("run")
	dateFlag, _ := cmd.Flags().GetString("date")
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	typeFlag, _ := cmd.Flags().GetString("type")
	filter.Underlying, _ = cmd.Flags().GetString("underlying")

	var err error
	if dateFlag != "" {
		if fromFlag != "" || toFlag != "" {
			return nil, filter, apperrors.NewValidationError("date", dateFlag, "cannot be combined with --from/--to")
		}
		if filter.StartDate, err = parseDateFlag("date", dateFlag); err != nil {
			return nil, filter, err
		}
		filter.EndDate = filter.StartDate
	} else {
		if filter.StartDate, err = parseDateFlag("from", fromFlag); err != nil {
			return nil, filter, err
		}
		if filter.EndDate, err = parseDateFlag("to", toFlag); err != nil {
			return nil, filter, err
		}
		if !filter.StartDate.IsZero() && !filter.EndDate.IsZero() && filter.EndDate.Before(filter.StartDate) {
			return nil, filter, apperrors.NewValidationError("to", toFlag, "before --from")
		}
	}

	if typeFlag != "" {
		typ, ok := models.ParseStrategyType(typeFlag)
		if !ok {
			return nil, filter, apperrors.NewValidationError("type", typeFlag, "unknown strategy type")
		}
		filter.Type = typ
	}

	st, err := a.Store()
	if err != nil {
		return nil, filter, err
	}
	if filter.RunID, err = a.resolveRun(ctx, st, runID); err != nil {
		return nil, filter, err
	}
	return st, filter, nil
}
