// Package pipeline turns a dataset and merged hyperparameters into a
// trained model, a best checkpoint, an epoch log and test metrics.
//
// The stages run in order, and each one is a failure boundary:
//
//	SelectColumns   feature/target resolution, numeric filtering
//	FillMissing     forward fill then back fill
//	SplitSizes      contiguous train/validation/test blocks
//	FitScaler       zero mean, unit variance, fitted on train only
//	NewWindows      sliding windows, target from the last row
//	Trainer.Train   epoch loop, best checkpoint, final evaluation
//
// Trainers are looked up by template name in a Registry. Unknown names
// fail closed with a configuration error.
package pipeline
