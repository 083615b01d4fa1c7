package traj

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var (
	cfgLoaded = false
	config    = _trajconfig{}
)

// _trajconfig is a "hidden" struct, just use `trajConfig`.
type _trajconfig struct {
	rendezvous RendezvousConfig
	launch     LaunchConfig
	outputDir  string
}

// trajConfig returns the cached configuration. When the TRAJ_CONFIG
// environment variable points at a directory with a conf.toml, values from
// it override the built-in defaults; otherwise the defaults are used as is.
func trajConfig() _trajconfig {
	if cfgLoaded {
		return config
	}
	config = _trajconfig{
		rendezvous: DefaultRendezvousConfig(),
		launch:     DefaultLaunchConfig(),
		outputDir:  ".",
	}

	if confPath := os.Getenv("TRAJ_CONFIG"); confPath != "" {
		viper.SetConfigName("conf")
		viper.AddConfigPath(confPath)
		if err := viper.ReadInConfig(); err != nil {
			panic(fmt.Errorf("%s/conf.toml not found", confPath))
		}
		if viper.IsSet("rendezvous.max_iterations") {
			config.rendezvous.MaxIterations = viper.GetInt("rendezvous.max_iterations")
		}
		if viper.IsSet("rendezvous.position_tol") {
			config.rendezvous.PositionTol = viper.GetFloat64("rendezvous.position_tol")
		}
		if viper.IsSet("rendezvous.velocity_tol") {
			config.rendezvous.VelocityTol = viper.GetFloat64("rendezvous.velocity_tol")
		}
		if viper.IsSet("rendezvous.step_size") {
			config.rendezvous.StepSize = viper.GetFloat64("rendezvous.step_size")
		}
		if viper.IsSet("launch.max_iterations") {
			config.launch.MaxIterations = viper.GetInt("launch.max_iterations")
		}
		if viper.IsSet("launch.convergence_tol") {
			config.launch.ConvergenceTol = viper.GetFloat64("launch.convergence_tol")
		}
		if viper.IsSet("launch.atmo_step_size") {
			config.launch.AtmoStepSize = viper.GetFloat64("launch.atmo_step_size")
		}
		if viper.IsSet("launch.vacuum_step_size") {
			config.launch.VacuumStepSize = viper.GetFloat64("launch.vacuum_step_size")
		}
		if viper.IsSet("general.verbose") {
			verbose := viper.GetBool("general.verbose")
			config.rendezvous.Verbose = verbose
			config.launch.Verbose = verbose
		}
		if viper.IsSet("general.output_path") {
			config.outputDir = viper.GetString("general.output_path")
		}
	}

	cfgLoaded = true
	return config
}

// ConfiguredRendezvous returns the rendezvous solver settings from the
// configuration file, or the defaults.
func ConfiguredRendezvous() RendezvousConfig {
	return trajConfig().rendezvous
}

// ConfiguredLaunch returns the ascent solver settings from the configuration
// file, or the defaults.
func ConfiguredLaunch() LaunchConfig {
	return trajConfig().launch
}

// OutputDir returns the directory trajectory exports default to.
func OutputDir() string {
	return trajConfig().outputDir
}
