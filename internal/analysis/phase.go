package analysis

import (
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Point struct{ X, Y float64 }

// Orbit pairs the in-line and cross-flow displacements step by step.
func Orbit(x, y []float64) []Point {
	n := min(len(x), len(y))
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: x[i], Y: y[i]}
	}
	return pts
}

// OrbitToASCII draws the orbit on a width by height character canvas.
func OrbitToASCII(points []Point, width, height int) string {
	if len(points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	if minX <= 0 && minX+rangeX >= 0 {
		col := int(-minX / rangeX * float64(width-1))
		for row := range canvas {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && minY+rangeY >= 0 {
		row := height - 1 - int(-minY/rangeY*float64(height-1))
		for col := range canvas[row] {
			if canvas[row][col] == '│' {
				canvas[row][col] = '┼'
			} else {
				canvas[row][col] = '─'
			}
		}
	}

	for _, p := range points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// UpCrossings returns the interpolated times at which data crosses its
// mean going upward.
func UpCrossings(times, data []float64) []float64 {
	n := min(len(times), len(data))
	if n < 2 {
		return nil
	}
	mean := stat.Mean(data[:n], nil)

	var out []float64
	for i := 1; i < n; i++ {
		prev, curr := data[i-1]-mean, data[i]-mean
		if prev < 0 && curr >= 0 {
			frac := -prev / (curr - prev)
			out = append(out, times[i-1]+frac*(times[i]-times[i-1]))
		}
	}
	return out
}

// CrossingFrequency is the mean frequency between successive up-crossings.
func CrossingFrequency(times, data []float64) (float64, error) {
	c := UpCrossings(times, data)
	if len(c) < 2 {
		return 0, ErrShortSeries
	}
	periods := make([]float64, len(c)-1)
	floats.SubTo(periods, c[1:], c[:len(c)-1])
	return 1 / stat.Mean(periods, nil), nil
}
