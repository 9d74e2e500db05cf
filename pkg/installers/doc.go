// Package installers implements the backends that probe and install profile entries.
//
// Each backend satisfies engine.Installer and is bound to one or more sections
// by NewRegistry:
//
//	prerequisites, apt_packages   AptInstaller
//	python_packages               PythonInstaller
//	custom_software               ScriptInstaller
//	shell_setup, configurations   ShellSetupInstaller
//	powershell_modules            PowerShellInstaller
//	nix_packages                  NixInstaller
//
// Every process is started through a runner.Runner, so backends are tested
// against runnertest.Fake without touching the machine.
package installers
