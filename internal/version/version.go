// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package version

// Tag specifies the current release tag. It needs to be manually
// updated. A test checks that the value of Tag never points to a
// git tag that is older than HEAD.
const Tag = "v0.1.0"
