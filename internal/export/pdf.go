// Package export 把会话中当前生效的笔画导出为 PDF。
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"collaborative-canvas/internal/domain"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// pxToMM 是画布像素到页面毫米的缩放系数。
const pxToMM = 0.25

// RenderPDF 按追加顺序绘制笔画并把 PDF 写入 w。
// 无法解码的负载会被跳过，返回值 skipped 是被跳过的笔画数。
func RenderPDF(w io.Writer, strokes []domain.Operation) (skipped int, err error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Collaborative canvas export", true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, op := range strokes {
		if !op.IsStroke() {
			continue
		}
		s, decodeErr := domain.DecodeStroke(op.Stroke)
		if decodeErr != nil {
			logrus.WithField("op_id", op.OpID).WithError(decodeErr).Debug("export: skipping undecodable stroke")
			skipped++
			continue
		}
		drawStroke(pdf, s)
	}

	if err := pdf.Output(w); err != nil {
		return skipped, fmt.Errorf("export: failed to write pdf: %w", err)
	}
	return skipped, nil
}

func drawStroke(pdf *gofpdf.Fpdf, s domain.Stroke) {
	if len(s.Points) == 0 {
		return
	}
	r, g, b := 0, 0, 0
	if s.IsEraser() {
		r, g, b = 255, 255, 255
	} else if pr, pg, pb, ok := ParseHexColor(s.Color); ok {
		r, g, b = pr, pg, pb
	}
	width := s.Width * pxToMM
	if width <= 0 {
		width = 0.2
	}

	// 单点笔画画成一个圆点
	if len(s.Points) == 1 {
		pdf.SetFillColor(r, g, b)
		p := s.Points[0]
		pdf.Circle(p.X*pxToMM, p.Y*pxToMM, width/2, "F")
		return
	}

	pdf.SetDrawColor(r, g, b)
	pdf.SetLineWidth(width)
	for i := 1; i < len(s.Points); i++ {
		a, c := s.Points[i-1], s.Points[i]
		pdf.Line(a.X*pxToMM, a.Y*pxToMM, c.X*pxToMM, c.Y*pxToMM)
	}
}

// ParseHexColor 解析 "#rrggbb" 或 "#rgb" 颜色。
func ParseHexColor(color string) (r, g, b int, ok bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(color), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
