package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/thomas-vilte/materelease/internal/models"
)

type changeKind int

const (
	kindStaged changeKind = iota
	kindUnstaged
	kindUntracked
	kindConflicted
)

var kindMarkers = map[changeKind]string{
	kindStaged:     color.New(color.FgGreen).Sprint("staged"),
	kindUnstaged:   color.New(color.FgYellow).Sprint("modified"),
	kindUntracked:  Dim.Sprint("untracked"),
	kindConflicted: color.New(color.FgRed, color.Bold).Sprint("conflict"),
}

type treeNode struct {
	name     string
	isFile   bool
	kind     changeKind
	children map[string]*treeNode
}

// ShowStatusTree prints the paths of st grouped as a directory tree, each file
// tagged with the set it belongs to.
func ShowStatusTree(w io.Writer, st models.StatusResult, header string) {
	_, _ = fmt.Fprintf(w, "\n%s\n", header)
	printTree(w, buildStatusTree(st), "", true)
}

func buildStatusTree(st models.StatusResult) *treeNode {
	root := &treeNode{children: make(map[string]*treeNode)}

	add := func(paths []string, kind changeKind) {
		for _, path := range paths {
			parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
			current := root
			for i, part := range parts {
				isFile := i == len(parts)-1
				if current.children[part] == nil {
					current.children[part] = &treeNode{
						name:     part,
						isFile:   isFile,
						kind:     kind,
						children: make(map[string]*treeNode),
					}
				}
				current = current.children[part]
			}
		}
	}

	add(st.Staged, kindStaged)
	add(st.Unstaged, kindUnstaged)
	add(st.Untracked, kindUntracked)
	add(st.Conflicted, kindConflicted)
	return root
}

func printTree(w io.Writer, node *treeNode, prefix string, isLast bool) {
	if node.name != "" {
		connector := "├── "
		if isLast {
			connector = "└── "
		}

		name := node.name
		marker := ""
		if node.isFile {
			marker = " (" + kindMarkers[node.kind] + ")"
		} else {
			name = Info.Sprint(name + "/")
		}
		_, _ = fmt.Fprintf(w, "%s%s%s%s\n", prefix, connector, name, marker)
	}

	childPrefix := prefix
	if node.name != "" {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}

	keys := sortedChildren(node.children)
	for i, key := range keys {
		printTree(w, node.children[key], childPrefix, i == len(keys)-1)
	}
}

// sortedChildren lists directories first, then files, each alphabetically.
func sortedChildren(nodes map[string]*treeNode) []string {
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := nodes[keys[i]], nodes[keys[j]]
		if a.isFile != b.isFile {
			return !a.isFile
		}
		return keys[i] < keys[j]
	})
	return keys
}
