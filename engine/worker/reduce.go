package worker

import "math"

// reducePCA projects each row of vectors onto its top `components`
// principal axes, found via power iteration on the covariance matrix with
// deflation. There is no UMAP or HDBSCAN binding in the ecosystem this
// module draws its dependencies from, so the visualization worker falls
// back to a from-scratch linear-algebra reduction; see DESIGN.md for why
// this one component stays on the standard library.
func reducePCA(vectors [][]float32, components int) [][]float64 {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	dims := len(vectors[0])
	if components > dims {
		components = dims
	}

	data := make([][]float64, n)
	mean := make([]float64, dims)
	for i, v := range vectors {
		data[i] = make([]float64, dims)
		for j, x := range v {
			data[i][j] = float64(x)
			mean[j] += float64(x)
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for i := range data {
		for j := range data[i] {
			data[i][j] -= mean[j]
		}
	}

	cov := covarianceMatrix(data, dims)
	axes := make([][]float64, 0, components)
	for c := 0; c < components; c++ {
		axis := powerIteration(cov, dims, 100)
		axes = append(axes, axis)
		deflate(cov, axis, dims)
	}

	out := make([][]float64, n)
	for i, row := range data {
		proj := make([]float64, len(axes))
		for c, axis := range axes {
			proj[c] = dot(row, axis)
		}
		out[i] = proj
	}
	return out
}

func covarianceMatrix(data [][]float64, dims int) [][]float64 {
	n := float64(len(data))
	cov := make([][]float64, dims)
	for i := range cov {
		cov[i] = make([]float64, dims)
	}
	for _, row := range data {
		for i := 0; i < dims; i++ {
			for j := i; j < dims; j++ {
				cov[i][j] += row[i] * row[j] / n
			}
		}
	}
	for i := 0; i < dims; i++ {
		for j := 0; j < i; j++ {
			cov[i][j] = cov[j][i]
		}
	}
	return cov
}

// powerIteration returns the dominant eigenvector of m via repeated
// matrix-vector multiplication and normalization.
func powerIteration(m [][]float64, dims, iters int) []float64 {
	v := make([]float64, dims)
	for i := range v {
		v[i] = 1.0 / float64(dims+1)
	}
	for iter := 0; iter < iters; iter++ {
		next := make([]float64, dims)
		for i := 0; i < dims; i++ {
			var sum float64
			for j := 0; j < dims; j++ {
				sum += m[i][j] * v[j]
			}
			next[i] = sum
		}
		norm := math.Sqrt(dot(next, next))
		if norm < 1e-12 {
			return next
		}
		for i := range next {
			next[i] /= norm
		}
		v = next
	}
	return v
}

// deflate removes the component of m along axis so the next power
// iteration converges to the next-largest eigenvector.
func deflate(m [][]float64, axis []float64, dims int) {
	var lambda float64
	mv := make([]float64, dims)
	for i := 0; i < dims; i++ {
		var sum float64
		for j := 0; j < dims; j++ {
			sum += m[i][j] * axis[j]
		}
		mv[i] = sum
	}
	lambda = dot(axis, mv)
	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			m[i][j] -= lambda * axis[i] * axis[j]
		}
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
