package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mer-coder/curve-convert/pkg/convert"
	"github.com/mer-coder/curve-convert/pkg/helpers"
	"github.com/mer-coder/curve-convert/pkg/metrics"
	"github.com/mer-coder/curve-convert/pkg/progress"
)

var (
	amountFlag string
	toFlag     string
	allFlag    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "执行一次兑换",
	Long: `按当前授权额度生成步骤计划并依次执行: 重置/提高授权, 开单, 等待批次结束, 领取.
Ctrl+C 会在当前步骤结束前放弃运行, 已上链的交易不会回滚.`,
	Example: `  curve-convert convert --amount 1.5 --to bonded
  curve-convert convert --all --to collateral`,
	RunE: runConvert,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "只生成并输出步骤计划, 不发送交易",
	RunE:  runPlan,
}

func init() {
	for _, cmd := range []*cobra.Command{convertCmd, planCmd} {
		cmd.Flags().StringVar(&amountFlag, "amount", "", "卖出的数量, 例如 1.5")
		cmd.Flags().StringVar(&toFlag, "to", "bonded", "兑换方向: bonded(买入) 或 collateral(卖出)")
		cmd.Flags().BoolVar(&allFlag, "all", false, "卖出全部余额")
		cmd.MarkFlagsMutuallyExclusive("amount", "all")
		rootCmd.AddCommand(cmd)
	}
}

func parseDirection(to string) (convert.Direction, error) {
	switch to {
	case "bonded", "buy":
		return convert.ToBonded, nil
	case "collateral", "sell":
		return convert.ToCollateral, nil
	}
	return 0, fmt.Errorf("无效的兑换方向 %q, 可选 bonded 或 collateral", to)
}

func (a *app) token(d convert.Denomination) progress.Token {
	bonded := d == convert.Bonded
	return progress.Token{Symbol: a.cfg.Symbol(bonded), Decimals: a.cfg.Decimals(bonded)}
}

// buildRequest 解析金额并检查余额
func (a *app) buildRequest(ctx context.Context) (convert.Request, error) {
	direction, err := parseDirection(toFlag)
	if err != nil {
		return convert.Request{}, err
	}
	source := direction.Source()

	balance, err := a.conn.Market.ReadTokenBalance(ctx, source)
	if err != nil {
		return convert.Request{}, err
	}

	var amount *big.Int
	switch {
	case allFlag:
		amount = balance
	case amountFlag != "":
		amount, err = helpers.ToBaseUnits(amountFlag, a.token(source).Decimals)
		if err != nil {
			return convert.Request{}, err
		}
	default:
		return convert.Request{}, errors.New("需要 --amount 或 --all")
	}

	err = convert.CheckSubmit(convert.Form{
		WalletConnected: true,
		Amount:          amount,
		Balance:         balance,
	})
	if errors.Is(err, convert.ErrInsufficientFunds) {
		return convert.Request{}, fmt.Errorf("%w: 余额 %s", err, progress.FormatAmount(balance, a.token(source)))
	}
	if err != nil {
		return convert.Request{}, err
	}
	return convert.NewRequest(direction, amount)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := a.buildRequest(ctx)
	if err != nil {
		return err
	}

	renderer := progress.NewRenderer(os.Stdout)
	observers := []convert.Observer{renderer}

	var recorder *metrics.Recorder
	if a.cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewRecorder(reg)
		observers = append(observers, recorder)
		defer serveMetrics(a.cfg.Metrics.Addr, reg, a.logger)()
	}

	converter := convert.NewConverter(a.conn.Market, a.conn.Market, convert.Options{
		RevealDelay: a.cfg.UI.PlanRevealDelay,
		Observers:   observers,
		Logger:      a.logger,
		OnPlanRevealed: func(runID string, plan *convert.Plan) {
			renderer.ShowPlan(req, a.token(req.Direction().Source()), plan.Labels())
		},
	})

	_, err = converter.Convert(ctx, req)
	snap := converter.Snapshot()

	received := convert.Bonded
	if !req.ToBonded() {
		received = convert.Collateral
	}
	renderer.Summary(snap, a.token(received))
	if recorder != nil {
		recorder.RecordRun(req.Direction(), snap.Outcome)
	}

	if convert.IsCancelled(err) {
		a.logger.Warn("兑换被中断", zap.String("run_id", snap.RunID), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	return converter.ReturnToForm()
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := a.buildRequest(ctx)
	if err != nil {
		return err
	}

	plan, err := convert.BuildPlan(ctx, req, a.conn.Market)
	if err != nil {
		return err
	}
	progress.NewRenderer(os.Stdout).ShowPlan(req, a.token(req.Direction().Source()), plan.Labels())
	return nil
}
