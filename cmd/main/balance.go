package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mer-coder/curve-convert/pkg/convert"
	"github.com/mer-coder/curve-convert/pkg/progress"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "显示账户余额, 授权额度和当前批次",
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	market := a.conn.Market
	fmt.Printf("地址: %s\n", market.From().Hex())

	for _, d := range []convert.Denomination{convert.Collateral, convert.Bonded} {
		balance, err := market.ReadTokenBalance(ctx, d)
		if err != nil {
			return err
		}
		fmt.Printf("余额: %s\n", progress.FormatAmount(balance, a.token(d)))
	}

	allowance, err := market.ReadAllowance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("授权额度: %s\n", progress.FormatAmount(allowance, a.token(convert.Collateral)))

	batchID, err := market.CurrentBatchID(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("当前批次: %s\n", batchID)
	return nil
}
