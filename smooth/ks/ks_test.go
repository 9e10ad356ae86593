package ks

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/milosgajdos/go-statespace"
	"github.com/milosgajdos/go-statespace/kalman/kf"
	"github.com/milosgajdos/go-statespace/model"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	Z, T, R *mat.Dense
	d       *mat.VecDense
	H, HD   *mat.SymDense
	Q       *mat.SymDense

	// trivar has correlated measurement disturbances
	trivar *model.Model
	// trivarD has uncorrelated measurement disturbances
	trivarD *model.Model

	obsFull    *model.Observations
	obsMissing *model.Observations
)

func setup() {
	Z = mat.NewDense(3, 2, []float64{
		1.0, 0.0,
		0.0, 1.0,
		1.0, 1.0,
	})
	d = mat.NewVecDense(3, []float64{0.1, -0.2, 0.3})
	H = mat.NewSymDense(3, []float64{
		1.0, 0.3, 0.0,
		0.3, 1.0, 0.2,
		0.0, 0.2, 1.5,
	})
	HD = mat.NewSymDense(3, []float64{
		1.0, 0.0, 0.0,
		0.0, 0.8, 0.0,
		0.0, 0.0, 1.5,
	})
	T = mat.NewDense(2, 2, []float64{
		0.8, 0.1,
		0.0, 0.5,
	})
	R = mat.NewDense(2, 2, []float64{1.0, 0.0, 0.0, 1.0})
	Q = mat.NewSymDense(2, []float64{0.5, 0.1, 0.1, 0.3})

	var err error
	trivar, err = model.NewTimeInvariant(Z, d, H, T, nil, R, Q, model.WithInit(model.NewStationary()))
	if err != nil {
		panic(err)
	}

	trivarD, err = model.NewTimeInvariant(Z, d, HD, T, nil, R, Q, model.WithInit(model.NewStationary()))
	if err != nil {
		panic(err)
	}

	obsFull, err = model.NewObservations(mat.NewDense(3, 8, []float64{
		0.5, 1.2, -0.3, 0.8, 2.1, 1.4, 0.2, -0.6,
		-0.1, 0.4, 0.9, -1.2, 0.3, 0.7, 1.1, 0.5,
		0.9, 1.0, 0.2, -0.1, 2.5, 2.2, 1.0, 0.4,
	}), nil)
	if err != nil {
		panic(err)
	}

	nan := math.NaN()
	obsMissing, err = model.NewObservationsNaN(mat.NewDense(3, 8, []float64{
		0.5, 1.2, nan, 0.8, 2.1, nan, 0.2, -0.6,
		-0.1, 0.4, nan, -1.2, nan, 0.7, 1.1, 0.5,
		0.9, nan, nan, -0.1, 2.5, nan, 1.0, 0.4,
	}))
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func smooth(t *testing.T, m statespace.Representation, obs *model.Observations, opts statespace.Options) *Results {
	res, err := Run(m, obs, opts)
	if err != nil {
		t.Fatalf("smoothing failed: %v", err)
	}

	return res
}

func TestKSNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(trivar, statespace.Options{})
	assert.NotNil(s)
	assert.NoError(err)
	assert.Equal(trivar, s.Model())

	s, err = New(nil, statespace.Options{})
	assert.Nil(s)
	assert.Error(err)

	s, err = New(trivar, statespace.Options{Smooth: statespace.SmoothUnivariate})
	assert.Nil(s)
	var cerr *statespace.ConfigError
	assert.True(errors.As(err, &cerr))

	s, err = New(trivar, statespace.Options{Filter: statespace.FilterUnivariate, Smooth: statespace.SmoothUnivariate})
	assert.NoError(err)

	// conventionally filtered results can not be smoothed univariate
	f, err := kf.New(trivar, statespace.Options{})
	assert.NoError(err)
	fr, err := f.Run(obsFull)
	assert.NoError(err)
	res, err := s.Smooth(fr)
	assert.Nil(res)
	assert.True(errors.As(err, &cerr))

	res, err = s.Smooth(nil)
	assert.Nil(res)
	assert.Error(err)
}

func TestKSLocalLevel(t *testing.T) {
	assert := assert.New(t)

	h, q := 0.5, 0.25
	m, err := model.NewTimeInvariant(
		mat.NewDense(1, 1, []float64{1.0}), nil, mat.NewSymDense(1, []float64{h}),
		mat.NewDense(1, 1, []float64{1.0}), nil,
		mat.NewDense(1, 1, []float64{1.0}), mat.NewSymDense(1, []float64{q}),
		model.WithInit(model.NewKnown(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}))),
	)
	assert.NoError(err)
	obs, err := model.NewObservations(mat.NewDense(1, 5, []float64{1.0, 0.5, 2.0, 1.5, 0.8}), nil)
	assert.NoError(err)

	res := smooth(t, m, obs, statespace.Options{})
	fr := res.Filter()
	n := res.Nobs()
	assert.Equal(statespace.SmoothConventional, res.Method())

	// scalar RTS recursion
	x := fr.FilteredState(n - 1).AtVec(0)
	v := fr.FilteredStateCov(n - 1).At(0, 0)
	assert.InDelta(x, res.SmoothedState(n-1).AtVec(0), 1e-12)
	assert.InDelta(v, res.SmoothedStateCov(n-1).At(0, 0), 1e-12)
	for i := n - 2; i >= 0; i-- {
		ptt := fr.FilteredStateCov(i).At(0, 0)
		pNext := fr.PredictedStateCov(i + 1).At(0, 0)
		j := ptt / pNext
		x = fr.FilteredState(i).AtVec(0) + j*(x-fr.PredictedState(i+1).AtVec(0))
		v = ptt + j*j*(v-pNext)
		assert.InDelta(x, res.SmoothedState(i).AtVec(0), 1e-10)
		assert.InDelta(v, res.SmoothedStateCov(i).At(0, 0), 1e-10)
	}

	assert.Equal(0.0, res.ScaledSmoothedEstimator(n).AtVec(0))
	assert.Equal(0.0, res.ScaledSmoothedEstimatorCov(n).At(0, 0))
	assert.Nil(res.ScaledSmoothedEstimator(n + 1))
	assert.Nil(res.SmoothedState(n))

	est := res.Smoothed(0)
	assert.NotNil(est)
	assert.Equal(res.SmoothedState(0).AtVec(0), est.Val().AtVec(0))
}

func TestKSMethods(t *testing.T) {
	assert := assert.New(t)

	for _, obs := range []*model.Observations{obsFull, obsMissing} {
		conv := smooth(t, trivar, obs, statespace.Options{Smooth: statespace.SmoothConventional})

		for _, method := range []statespace.SmoothMethod{statespace.SmoothClassical, statespace.SmoothAlternative} {
			res := smooth(t, trivar, obs, statespace.Options{Smooth: method})
			assert.Equal(method, res.Method())

			for i := 0; i < conv.Nobs(); i++ {
				assert.True(mat.EqualApprox(conv.SmoothedState(i), res.SmoothedState(i), 1e-8), method.String())
				assert.True(mat.EqualApprox(conv.SmoothedStateCov(i), res.SmoothedStateCov(i), 1e-8), method.String())
				assert.True(mat.EqualApprox(conv.SmoothedMeasurementDisturbance(i), res.SmoothedMeasurementDisturbance(i), 1e-8))
				assert.True(mat.EqualApprox(conv.SmoothedStateDisturbanceCov(i), res.SmoothedStateDisturbanceCov(i), 1e-8))
			}
		}
	}
}

func TestKSDisturbances(t *testing.T) {
	assert := assert.New(t)

	for _, m := range []*model.Model{trivar, trivarD} {
		for _, obs := range []*model.Observations{obsFull, obsMissing} {
			res := smooth(t, m, obs, statespace.Options{})
			n := res.Nobs()

			for i := 0; i < n; i++ {
				// e[t] = y[t] - d - Z*x[t] on observed entries
				eps := res.SmoothedMeasurementDisturbance(i)
				assert.Equal(3, eps.Len())
				for _, j := range obs.Present(i) {
					y, _ := obs.Value(j, i)
					assert.InDelta(y-res.SmoothedForecast(i).AtVec(j), eps.AtVec(j), 1e-8)
				}

				// R*eta[t] = x[t+1] - T*x[t]
				if i < n-1 {
					tx := &mat.VecDense{}
					tx.MulVec(T, res.SmoothedState(i))
					tx.SubVec(res.SmoothedState(i+1), tx)
					assert.True(mat.EqualApprox(tx, res.SmoothedStateDisturbance(i), 1e-8))
				}

				assert.GreaterOrEqual(mat.Det(res.SmoothedStateCov(i)), -1e-12)
				assert.GreaterOrEqual(mat.Det(res.SmoothedStateDisturbanceCov(i)), -1e-12)
			}

			// last state disturbance carries no information
			assert.True(mat.EqualApprox(Q, res.SmoothedStateDisturbanceCov(n-1), 1e-12))
		}
	}
}

func TestKSMissing(t *testing.T) {
	assert := assert.New(t)

	res := smooth(t, trivar, obsMissing, statespace.Options{})

	// fully missing step
	eps := res.SmoothedMeasurementDisturbance(2)
	for i := 0; i < eps.Len(); i++ {
		assert.Equal(0.0, eps.AtVec(i))
	}
	assert.True(mat.Equal(H, res.SmoothedMeasurementDisturbanceCov(2)))

	r := &mat.VecDense{}
	r.MulVec(T.T(), res.ScaledSmoothedEstimator(3))
	assert.True(mat.EqualApprox(r, res.ScaledSmoothedEstimator(2), 1e-12))

	// uncorrelated missing entry is zero with full variance
	resD := smooth(t, trivarD, obsMissing, statespace.Options{})
	assert.Equal(0.0, resD.SmoothedMeasurementDisturbance(1).AtVec(2))
	assert.Equal(HD.At(2, 2), resD.SmoothedMeasurementDisturbanceCov(1).At(2, 2))

	// correlated missing entry is predicted from the observed ones
	eps = res.SmoothedMeasurementDisturbance(4)
	assert.NotEqual(0.0, eps.AtVec(1))
	assert.Less(res.SmoothedMeasurementDisturbanceCov(4).At(1, 1), H.At(1, 1))
}

func TestKSUnivariate(t *testing.T) {
	assert := assert.New(t)

	for _, obs := range []*model.Observations{obsFull, obsMissing} {
		conv := smooth(t, trivarD, obs, statespace.Options{})
		univ := smooth(t, trivarD, obs, statespace.Options{Filter: statespace.FilterUnivariate})
		assert.Equal(statespace.SmoothUnivariate, univ.Method())

		for i := 0; i < conv.Nobs(); i++ {
			assert.Equal(statespace.Observed, univ.Space(i))
			assert.True(mat.EqualApprox(conv.SmoothedState(i), univ.SmoothedState(i), 1e-8))
			assert.True(mat.EqualApprox(conv.SmoothedStateCov(i), univ.SmoothedStateCov(i), 1e-8))
			assert.True(mat.EqualApprox(conv.SmoothedStateDisturbance(i), univ.SmoothedStateDisturbance(i), 1e-8))
			assert.True(mat.EqualApprox(conv.ScaledSmoothedEstimator(i), univ.ScaledSmoothedEstimator(i), 1e-8))
			assert.True(mat.EqualApprox(conv.SmoothedMeasurementDisturbance(i), univ.SmoothedMeasurementDisturbance(i), 1e-8))

			cc := conv.SmoothedMeasurementDisturbanceCov(i)
			uc := univ.SmoothedMeasurementDisturbanceCov(i)
			for j := 0; j < 3; j++ {
				assert.InDelta(cc.At(j, j), uc.At(j, j), 1e-8)
			}
		}
	}

	// correlated disturbances are smoothed in the rotated space
	univ := smooth(t, trivar, obsFull, statespace.Options{Filter: statespace.FilterUnivariate, Smooth: statespace.SmoothUnivariate})
	conv := smooth(t, trivar, obsFull, statespace.Options{})
	for i := 0; i < conv.Nobs(); i++ {
		assert.Equal(statespace.Transformed, univ.Space(i))
		assert.True(mat.EqualApprox(conv.SmoothedState(i), univ.SmoothedState(i), 1e-8))
	}
}

func TestKSCollapsed(t *testing.T) {
	assert := assert.New(t)

	for _, obs := range []*model.Observations{obsFull, obsMissing} {
		full := smooth(t, trivar, obs, statespace.Options{})

		for _, method := range []statespace.FilterMethod{statespace.FilterConventional, statespace.FilterUnivariate} {
			coll := smooth(t, trivar, obs, statespace.Options{Filter: method, Collapsed: true})

			for i := 0; i < full.Nobs(); i++ {
				assert.True(mat.EqualApprox(full.SmoothedState(i), coll.SmoothedState(i), 1e-8))
				assert.True(mat.EqualApprox(full.SmoothedStateCov(i), coll.SmoothedStateCov(i), 1e-8))
				assert.True(mat.EqualApprox(full.SmoothedStateDisturbance(i), coll.SmoothedStateDisturbance(i), 1e-8))
				assert.True(mat.EqualApprox(full.SmoothedForecast(i), coll.SmoothedForecast(i), 1e-8))
			}

			assert.Equal(statespace.Collapsed, coll.Space(0))
			assert.Equal(2, coll.SmoothedMeasurementDisturbance(0).Len())
		}
	}
}

func TestKSExactDiffuse(t *testing.T) {
	assert := assert.New(t)

	exactModel, err := model.NewTimeInvariant(Z, d, HD, T, nil, R, Q, model.WithInit(model.NewExactDiffuse()))
	assert.NoError(err)
	approxModel, err := model.NewTimeInvariant(Z, d, HD, T, nil, R, Q, model.WithInit(model.NewApproximateDiffuse(nil, 1e6)))
	assert.NoError(err)

	for _, obs := range []*model.Observations{obsFull, obsMissing} {
		exact := smooth(t, exactModel, obs, statespace.Options{})
		approx := smooth(t, approxModel, obs, statespace.Options{})
		assert.Equal(1, exact.Filter().DiffusePeriods())

		for i := 0; i < exact.Nobs(); i++ {
			assert.True(mat.EqualApprox(exact.SmoothedState(i), approx.SmoothedState(i), 1e-4))
			assert.True(mat.EqualApprox(exact.SmoothedStateCov(i), approx.SmoothedStateCov(i), 1e-4))

			eps := exact.SmoothedMeasurementDisturbance(i)
			for _, j := range obs.Present(i) {
				y, _ := obs.Value(j, i)
				assert.InDelta(y-exact.SmoothedForecast(i).AtVec(j), eps.AtVec(j), 1e-8)
			}
		}
	}
}

func TestKSDiffuseLocalLevel(t *testing.T) {
	assert := assert.New(t)

	h, q := 0.5, 0.25
	m, err := model.NewTimeInvariant(
		mat.NewDense(1, 1, []float64{1.0}), nil, mat.NewSymDense(1, []float64{h}),
		mat.NewDense(1, 1, []float64{1.0}), nil,
		mat.NewDense(1, 1, []float64{1.0}), mat.NewSymDense(1, []float64{q}),
		model.WithInit(model.NewExactDiffuse()),
	)
	assert.NoError(err)

	y0, y1 := 1.0, 2.0
	obs, err := model.NewObservations(mat.NewDense(1, 2, []float64{y0, y1}), nil)
	assert.NoError(err)

	res := smooth(t, m, obs, statespace.Options{})

	// level posterior given both observations under a flat prior
	F := 2*h + q
	assert.InDelta(y0+h*(y1-y0)/F, res.SmoothedState(0).AtVec(0), 1e-12)
	assert.InDelta(h-h*h/F, res.SmoothedStateCov(0).At(0, 0), 1e-12)
	assert.InDelta(-h*(y1-y0)/F, res.SmoothedMeasurementDisturbance(0).AtVec(0), 1e-12)
	assert.InDelta(h-h*h/F, res.SmoothedMeasurementDisturbanceCov(0).At(0, 0), 1e-12)
}

func TestKSDiffuseMissing(t *testing.T) {
	assert := assert.New(t)

	exactModel, err := model.NewTimeInvariant(Z, d, HD, T, nil, R, Q, model.WithInit(model.NewExactDiffuse()))
	assert.NoError(err)
	approxModel, err := model.NewTimeInvariant(Z, d, HD, T, nil, R, Q, model.WithInit(model.NewApproximateDiffuse(nil, 1e6)))
	assert.NoError(err)

	nan := math.NaN()
	obs, err := model.NewObservationsNaN(mat.NewDense(3, 6, []float64{
		nan, 1.2, nan, 0.8, 2.1, 1.4,
		nan, 0.4, nan, -1.2, 0.3, 0.7,
		nan, 1.0, nan, -0.1, 2.5, 2.2,
	}))
	assert.NoError(err)
	// full rank diffuse prior makes the leading missing step irrelevant
	trimmed, err := model.NewObservationsNaN(mat.NewDense(3, 5, []float64{
		1.2, nan, 0.8, 2.1, 1.4,
		0.4, nan, -1.2, 0.3, 0.7,
		1.0, nan, -0.1, 2.5, 2.2,
	}))
	assert.NoError(err)

	for _, opts := range []statespace.Options{
		{},
		{Smooth: statespace.SmoothClassical},
		{Smooth: statespace.SmoothAlternative},
		{Filter: statespace.FilterUnivariate},
	} {
		exact := smooth(t, exactModel, obs, opts)
		approx := smooth(t, approxModel, obs, opts)
		short := smooth(t, exactModel, trimmed, opts)
		assert.Equal(2, exact.Filter().DiffusePeriods())
		assert.Equal(1, short.Filter().DiffusePeriods())

		// fully missing diffuse step only transports the estimators
		eps := exact.SmoothedMeasurementDisturbance(0)
		assert.Equal(3, eps.Len())
		for i := 0; i < eps.Len(); i++ {
			assert.Equal(0.0, eps.AtVec(i))
		}
		assert.True(mat.Equal(HD, exact.SmoothedMeasurementDisturbanceCov(0)))

		r := &mat.VecDense{}
		r.MulVec(T.T(), exact.ScaledSmoothedEstimator(1))
		assert.True(mat.EqualApprox(r, exact.ScaledSmoothedEstimator(0), 1e-12))

		for i := 1; i < exact.Nobs(); i++ {
			assert.True(mat.EqualApprox(short.SmoothedState(i-1), exact.SmoothedState(i), 1e-8))
			assert.True(mat.EqualApprox(short.SmoothedStateCov(i-1), exact.SmoothedStateCov(i), 1e-8))
			assert.True(mat.EqualApprox(short.SmoothedMeasurementDisturbance(i-1), exact.SmoothedMeasurementDisturbance(i), 1e-8))
		}

		// state before the first observation follows the transition backwards
		eta := exact.SmoothedStateDisturbance(0)
		tx := &mat.VecDense{}
		tx.MulVec(T, exact.SmoothedState(0))
		tx.AddVec(tx, eta)
		assert.True(mat.EqualApprox(exact.SmoothedState(1), tx, 1e-8))

		for i := 0; i < exact.Nobs(); i++ {
			assert.GreaterOrEqual(mat.Det(exact.SmoothedStateCov(i)), -1e-12)
			if i >= exact.Filter().DiffusePeriods() {
				assert.True(mat.EqualApprox(exact.SmoothedState(i), approx.SmoothedState(i), 1e-4))
				assert.True(mat.EqualApprox(exact.SmoothedStateCov(i), approx.SmoothedStateCov(i), 1e-4))
			}
		}
	}
}
