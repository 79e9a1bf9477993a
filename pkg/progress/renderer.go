package progress

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mer-coder/curve-convert/pkg/convert"
	"github.com/mer-coder/curve-convert/pkg/helpers"
)

var _ convert.Observer = (*Renderer)(nil)

// 颜色与 256 色终端对应
var (
	primaryColor = lipgloss.Color("12")
	mutedColor   = lipgloss.Color("8")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	errorColor   = lipgloss.Color("9")
)

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	active  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(primaryColor),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(mutedColor),
		active:  r.NewStyle().Foreground(primaryColor),
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(errorColor),
	}
}

// Token 代币展示信息
type Token struct {
	Symbol   string
	Decimals int32
}

// Renderer 把步骤进度逐行输出到终端
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
	total  int
}

// NewRenderer 创建渲染器, 颜色按 w 是否为终端自动选择
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{
		w:      w,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// ShowPlan 输出计划的全部步骤
func (r *Renderer) ShowPlan(req convert.Request, token Token, labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total = len(labels)
	fmt.Fprintln(r.w, r.styles.title.Render(fmt.Sprintf("%s %s %s",
		strings.ToUpper(req.Direction().String()),
		helpers.FromBaseUnits(req.Amount(), token.Decimals, -1),
		token.Symbol)))
	for i, label := range labels {
		fmt.Fprintf(r.w, "  %s %s\n", r.styles.muted.Render(r.position(i)), label)
	}
}

// OnStepUpdate 实现 convert.Observer
func (r *Renderer) OnStepUpdate(u convert.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("%s %s %s",
		r.styles.muted.Render(r.position(u.StepIndex)),
		r.icon(u.Status),
		r.styles.label.Render(u.Label))

	if detail := r.detail(u); detail != "" {
		line += "  " + detail
	}
	fmt.Fprintln(r.w, line)
}

// Summary 输出运行结果
func (r *Renderer) Summary(snap convert.Snapshot, received Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch snap.Outcome {
	case convert.OutcomeSucceeded:
		total := "?"
		if snap.ConvertedTotal != nil {
			total = helpers.FromBaseUnits(snap.ConvertedTotal, received.Decimals, 6)
		}
		fmt.Fprintln(r.w, r.styles.success.Render(fmt.Sprintf("兑换完成, 获得 %s %s", total, received.Symbol)))
	case convert.OutcomeFailed:
		fmt.Fprintln(r.w, r.styles.failure.Render(fmt.Sprintf("兑换失败: %v", snap.Err)))
	case convert.OutcomeCancelled:
		fmt.Fprintln(r.w, r.styles.warning.Render("兑换已取消"))
	default:
		return
	}
	if snap.OrderHandle != (common.Hash{}) {
		fmt.Fprintln(r.w, r.styles.muted.Render("订单: "+snap.OrderHandle.Hex()))
	}
}

func (r *Renderer) position(index int) string {
	if r.total > 0 {
		return fmt.Sprintf("[%d/%d]", index+1, r.total)
	}
	return fmt.Sprintf("[%d]", index+1)
}

func (r *Renderer) icon(status convert.StepStatus) string {
	switch status {
	case convert.StatusActive:
		return r.styles.active.Render("▸")
	case convert.StatusConfirming:
		return r.styles.warning.Render("…")
	case convert.StatusDone:
		return r.styles.success.Render("✓")
	case convert.StatusFailed:
		return r.styles.failure.Render("✗")
	default:
		return r.styles.muted.Render("·")
	}
}

func (r *Renderer) detail(u convert.Update) string {
	if u.Status == convert.StatusFailed && u.Err != nil {
		return r.styles.failure.Render(u.Err.Error())
	}
	if !u.ShowDescription {
		return ""
	}
	switch u.Status {
	case convert.StatusActive:
		return r.styles.muted.Render("签名并发送交易")
	case convert.StatusConfirming:
		return r.styles.muted.Render("等待确认 " + shortHash(u.TxHash))
	case convert.StatusDone:
		if u.TxHash != (common.Hash{}) {
			return r.styles.muted.Render(shortHash(u.TxHash))
		}
	}
	return ""
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	return s[:10] + "…" + s[len(s)-6:]
}

// FormatAmount 按精度输出金额, nil 表示未知
func FormatAmount(v *big.Int, token Token) string {
	if v == nil {
		return "? " + token.Symbol
	}
	return helpers.FromBaseUnits(v, token.Decimals, 6) + " " + token.Symbol
}
