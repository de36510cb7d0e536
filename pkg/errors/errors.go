// Package errors provides error handling and the warning system for the
// whole library. Numerical infeasibility (a covariance step that would leave
// the positive-definite cone, a divergent sampler trajectory) is an expected
// steady-state occurrence in stochastic inference and is reported through the
// non-fatal warning channel; shape and contract violations are structured,
// fatal errors carrying stack traces.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// Default handler logs to standard error.
		log.Printf("gpvi-warning: %v\n", w)
	}
	// zerolog sink, set lazily to avoid a circular import with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler. This controls how
// non-fatal conditions such as PosDefBackoffWarning are processed.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // ignore warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink (set by pkg/log
// to avoid a circular import).
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn raises a warning. When a zerolog sink is installed it receives the
// warning as a structured event, otherwise the plain handler is used.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is raised when an iterative procedure stops without
// meeting its convergence criterion.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds structured warning information to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// PosDefBackoffWarning is raised when the step-size back-off on a covariance
// update could not find a feasible multiplier above the minimum threshold.
// The iteration proceeds with a mean-only update; the warning is informational
// but a run that raises it on every iteration is misconfigured.
type PosDefBackoffWarning struct {
	Latent    int     // index of the latent GP whose update was skipped
	Iteration int     // training iteration
	MinAlpha  float64 // threshold below which the search gave up
}

func (w *PosDefBackoffWarning) Error() string {
	return fmt.Sprintf("covariance update for latent GP %d skipped at iteration %d: no step multiplier >= %g keeps the covariance positive-definite", w.Latent, w.Iteration, w.MinAlpha)
}

// MarshalZerologObject adds structured warning information to a zerolog event.
func (w *PosDefBackoffWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("latent", w.Latent).
		Int("iteration", w.Iteration).
		Float64("min_alpha", w.MinAlpha).
		Str("type", "PosDefBackoffWarning")
}

// NewPosDefBackoffWarning creates a new PosDefBackoffWarning.
func NewPosDefBackoffWarning(latent, iteration int, minAlpha float64) *PosDefBackoffWarning {
	return &PosDefBackoffWarning{Latent: latent, Iteration: iteration, MinAlpha: minAlpha}
}

// DivergentTrajectoryWarning is raised when a sampler trajectory produces a
// non-finite energy. The proposal is rejected and the previous state retained.
type DivergentTrajectoryWarning struct {
	Iteration int
	Energy    float64
}

func (w *DivergentTrajectoryWarning) Error() string {
	return fmt.Sprintf("divergent trajectory at iteration %d (energy=%g); proposal rejected", w.Iteration, w.Energy)
}

// MarshalZerologObject adds structured warning information to a zerolog event.
func (w *DivergentTrajectoryWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("iteration", w.Iteration).
		Float64("energy", w.Energy).
		Str("type", "DivergentTrajectoryWarning")
}

// NewDivergentTrajectoryWarning creates a new DivergentTrajectoryWarning.
func NewDivergentTrajectoryWarning(iteration int, energy float64) *DivergentTrajectoryWarning {
	return &DivergentTrajectoryWarning{Iteration: iteration, Energy: energy}
}

// DegenerateKernelWarning is raised when a kernel coefficient would reach
// zero during hyperparameter ascent and is clamped to a positive floor
// instead, avoiding a degenerate zero-kernel.
type DegenerateKernelWarning struct {
	Param string
	Floor float64
}

func (w *DegenerateKernelWarning) Error() string {
	return fmt.Sprintf("kernel parameter '%s' clamped to floor %g to avoid a degenerate kernel", w.Param, w.Floor)
}

// MarshalZerologObject adds structured warning information to a zerolog event.
func (w *DegenerateKernelWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("param", w.Param).
		Float64("floor", w.Floor).
		Str("type", "DegenerateKernelWarning")
}

// NewDegenerateKernelWarning creates a new DegenerateKernelWarning.
func NewDegenerateKernelWarning(param string, floor float64) *DegenerateKernelWarning {
	return &DegenerateKernelWarning{Param: param, Floor: floor}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when a model is used before Fit has been called.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("gpvi: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a new NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input dimensions do not match expectations.
// Shape violations are always fatal; inputs are never silently truncated or
// padded.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("gpvi: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a new DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// IncompatibleLikelihoodError is returned at configuration time when the
// analytic update strategy is requested for a likelihood that has no
// closed-form conjugate update. The caller must pick the numerical or
// sampling strategy instead.
type IncompatibleLikelihoodError struct {
	Likelihood string
	Strategy   string
}

func (e *IncompatibleLikelihoodError) Error() string {
	return fmt.Sprintf("gpvi: likelihood '%s' does not support the %s update strategy; use the numerical or sampling strategy", e.Likelihood, e.Strategy)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *IncompatibleLikelihoodError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("likelihood", e.Likelihood).
		Str("strategy", e.Strategy).
		Str("type", "IncompatibleLikelihoodError")
}

// NewIncompatibleLikelihoodError creates a new IncompatibleLikelihoodError
// with a stack trace.
func NewIncompatibleLikelihoodError(likelihood, strategy string) error {
	err := &IncompatibleLikelihoodError{Likelihood: likelihood, Strategy: strategy}
	return errors.WithStack(err)
}

// ValidationError is returned when a parameter fails validation.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gpvi: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a new ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is invalid for an operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("gpvi: %s: %s", e.Op, e.Message)
}

// NewValueError creates a new ValueError with a stack trace.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports NaN, Inf, overflow or underflow detected
// during a numerical operation.
type NumericalInstabilityError struct {
	Operation string                 // e.g. "natural_gradient", "elbo"
	Values    []float64              // offending values
	Context   map[string]interface{} // extra debugging context
	Iteration int                    // iteration at which it occurred
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("gpvi: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a new NumericalInstabilityError.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As reports whether err can be assigned to target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates an error with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData is returned when empty data is supplied.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a matrix factorization fails because
	// the matrix is singular.
	ErrSingularMatrix = New("singular matrix")

	// ErrNotPositiveDefinite is returned when a matrix required to be
	// positive-definite fails its Cholesky factorization.
	ErrNotPositiveDefinite = New("matrix is not positive definite")
)
