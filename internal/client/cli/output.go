// Package cli 命令行输出工具
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Output 结构化输出，目标不是终端时自动关闭颜色
type Output struct {
	w io.Writer

	success *color.Color
	err     *color.Color
	warning *color.Color
	info    *color.Color
	bold    *color.Color
	faint   *color.Color
}

// NewOutput 创建输出工具
func NewOutput(w io.Writer, noColor bool) *Output {
	o := &Output{
		w:       w,
		success: color.New(color.FgGreen),
		err:     color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
	enabled := !noColor && IsTerminal(w)
	for _, c := range []*color.Color{o.success, o.err, o.warning, o.info, o.bold, o.faint} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return o
}

// IsTerminal w 是否为终端
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer 底层输出
func (o *Output) Writer() io.Writer {
	return o.w
}

// Success 输出成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.success.Sprint("✔"), fmt.Sprintf(format, args...))
}

// Error 输出错误消息
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.err.Sprint("✖"), fmt.Sprintf(format, args...))
}

// Warning 输出警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.warning.Sprint("!"), fmt.Sprintf(format, args...))
}

// Info 输出信息消息
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.info.Sprint("•"), fmt.Sprintf(format, args...))
}

// Plain 输出普通消息
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Label 着色的短标签，按语义选择颜色
func (o *Output) Label(kind, text string) string {
	switch kind {
	case "success":
		return o.success.Sprint(text)
	case "error":
		return o.err.Sprint(text)
	case "warning":
		return o.warning.Sprint(text)
	case "info":
		return o.info.Sprint(text)
	case "faint":
		return o.faint.Sprint(text)
	}
	return o.bold.Sprint(text)
}

// Header 输出标题
func (o *Output) Header(title string) {
	fmt.Fprintln(o.w)
	fmt.Fprintln(o.w, o.bold.Sprint(title))
	fmt.Fprintln(o.w, strings.Repeat("━", len(title)))
}

// KeyValue 输出键值对
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %-20s %s\n", o.bold.Sprint(key+":"), value)
}

// Separator 输出分隔线
func (o *Output) Separator() {
	fmt.Fprintln(o.w, o.faint.Sprint(strings.Repeat("━", 80)))
}

// Table 输出表格
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建新表格
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow 添加行，多出表头的列被忽略
func (t *Table) AddRow(cols ...string) {
	for i, col := range cols {
		if i < len(t.widths) && len(col) > t.widths[i] {
			t.widths[i] = len(col)
		}
	}
	t.rows = append(t.rows, cols)
}

// Len 数据行数
func (t *Table) Len() int {
	return len(t.rows)
}

// Render 渲染表格
func (t *Table) Render(o *Output) {
	// 表头先补齐再着色，避免转义序列影响对齐
	for i, header := range t.headers {
		fmt.Fprintf(o.w, "%s  ", o.bold.Sprint(pad(header, t.widths[i])))
	}
	fmt.Fprintln(o.w)

	totalWidth := 0
	for _, w := range t.widths {
		totalWidth += w + 2
	}
	fmt.Fprintln(o.w, strings.Repeat("─", min(totalWidth, 120)))

	for _, row := range t.rows {
		for i, col := range row {
			if i < len(t.widths) {
				fmt.Fprintf(o.w, "%s  ", pad(col, t.widths[i]))
			}
		}
		fmt.Fprintln(o.w)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
