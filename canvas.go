package tasm

// ComputeCanvas sizes the output canvas from every matched rectangle of a
// job: the largest width and the largest height, each rounded up to an even
// number. It needs the complete set before the writer is opened.
func ComputeCanvas(rects []Rectangle) (Canvas, error) {
	if len(rects) == 0 {
		return Canvas{}, ErrEmptyResult
	}

	var maxW, maxH int
	for _, r := range rects {
		maxW = max(maxW, r.Width)
		maxH = max(maxH, r.Height)
	}

	return Canvas{
		Width:  roundUpEven(maxW),
		Height: roundUpEven(maxH),
	}, nil
}

// AtLeast grows the canvas to a codec minimum, keeping both sides even.
// Zero minimums leave the canvas unchanged.
func (c Canvas) AtLeast(minWidth, minHeight int) Canvas {
	return Canvas{
		Width:  roundUpEven(max(c.Width, minWidth)),
		Height: roundUpEven(max(c.Height, minHeight)),
	}
}

func roundUpEven(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}
